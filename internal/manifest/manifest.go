// Package manifest serializes a scheduled invocation into the deterministic,
// diff-stable text form consumed by executor backends, and parses it back.
package manifest

import (
	"github.com/vk/taskgrid/internal/configchain"
)

// LocalBackend is the direct in-process execution backend identity.
const LocalBackend = "local"

// FileName is the manifest file inside an invocation directory.
const FileName = "manifest.tsv"

// IsLocalBackend reports whether a backend identity means direct local
// execution rather than cluster submission.
func IsLocalBackend(name string) bool {
	return name == LocalBackend || name == "direct"
}

// TaskLine is one scheduled (task, run) execution within a job block.
type TaskLine struct {
	// Index is the pair's position in the invocation's original pair list.
	Index int
	// Run is the run name.
	Run string
	// TaskRel is the task path relative to the workspace root.
	TaskRel string
	// Overrides are the pair's effective override assignments.
	Overrides []configchain.KV
}

// JobBlock groups the task lines sharing one (stage, job name, backend).
type JobBlock struct {
	// ID is assigned in emission order, only to blocks that retain at least
	// one task line after filtering.
	ID int
	// Stage is the block's topological stage. It is carried on the JOB line
	// explicitly: deriving it from DEPENDS would misplace a block whose
	// whole preceding stage was filtered away.
	Stage int
	// JobName is the grouping name shared by the block's lines.
	JobName string
	// Backend is the execution-backend identity shared by the block's lines.
	Backend string
	// Depends lists the ids of every surviving block in the immediately
	// preceding stage. This stage-level compression is intentional:
	// executor backends schedule at stage and job granularity, not at the
	// core's per-occurrence edge granularity.
	Depends []int
	// Lines are the block's task lines in original pair order.
	Lines []TaskLine
}

// Manifest is the complete serialized execution plan of one invocation.
type Manifest struct {
	// Header carries global flags as ordered key=value entries.
	Header []configchain.KV
	// Blocks in emission order: ascending stage, then minimum original pair
	// index among members.
	Blocks []JobBlock
}
