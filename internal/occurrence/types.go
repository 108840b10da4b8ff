// Package occurrence expands an invocation's task specs into the ordered
// (task, run) pair list and assigns occurrence identities. An occurrence is
// one (task, normalized override context) combination; it is the node
// granularity at which dependencies are resolved and stages are computed.
package occurrence

import (
	"strings"

	"github.com/vk/taskgrid/internal/configchain"
	"github.com/vk/taskgrid/internal/taskpath"
)

// Spec is one requested task spec with the override context in force at its
// position in the invocation.
type Spec struct {
	// Raw is the argument as given: "task_path[:run_spec]".
	Raw string
	// Overrides is the ordered override context for this spec.
	Overrides configchain.Context
}

// SplitRaw cuts a raw spec into its path portion and optional run spec.
func (s Spec) SplitRaw() (path, runSpec string) {
	path, runSpec, _ = strings.Cut(s.Raw, ":")
	return path, runSpec
}

// Occurrence is a scheduled (task, context) identity.
type Occurrence struct {
	// ID is assigned at first sighting, in order of first appearance.
	ID int
	// Task is the absolute task directory.
	Task string
	// Overrides is the normalized override context of this occurrence.
	Overrides configchain.Context
	// Backend is the execution-backend identity resolved under Overrides.
	Backend string
	// JobName is the job grouping name resolved under Overrides.
	JobName string
}

// Pair is one concrete scheduled execution.
type Pair struct {
	// Index is the pair's position in the full original pair list.
	Index int
	// Task is the absolute task directory.
	Task string
	// Run is the run name.
	Run string
	// OccurrenceID links the pair to its occurrence.
	OccurrenceID int
}

// occKey identifies an occurrence structurally: task directory plus the
// canonical form of the normalized override context.
type occKey struct {
	task string
	ctx  string
}

// pairKey identifies a concrete (task, run) combination.
type pairKey struct {
	task string
	run  string
}

// SchedulingContext owns all occurrence and pair bookkeeping for one
// resolution pass. It replaces what would otherwise be process-wide mutable
// state: one value is threaded through builder, validator and scheduler.
type SchedulingContext struct {
	// Paths resolves task path arguments.
	Paths *taskpath.Resolver
	// Config answers configuration-chain queries.
	Config configchain.Resolver
	// Clean switches run resolution to existing run folders on disk.
	Clean bool
	// DefaultBackend is used when a task's chain resolves no backend.
	DefaultBackend string

	// Pairs is the full ordered pair list.
	Pairs []Pair
	// Occurrences indexed by occurrence id.
	Occurrences []*Occurrence
	// TaskList is the deduplicated task list in first-appearance order.
	TaskList []string

	occIDs    map[occKey]int
	taskSeen  map[string]bool
	pairCount map[pairKey]int
	lastOcc   map[string]int
}

// NewSchedulingContext creates an empty context over the given resolvers.
func NewSchedulingContext(paths *taskpath.Resolver, config configchain.Resolver) *SchedulingContext {
	return &SchedulingContext{
		Paths:     paths,
		Config:    config,
		occIDs:    make(map[occKey]int),
		taskSeen:  make(map[string]bool),
		pairCount: make(map[pairKey]int),
		lastOcc:   make(map[string]int),
	}
}

// HasTask reports whether any pair of the invocation belongs to the task.
func (sc *SchedulingContext) HasTask(taskDir string) bool {
	return sc.taskSeen[taskDir]
}

// HasPair reports whether the concrete (task, run) combination is part of
// the invocation.
func (sc *SchedulingContext) HasPair(taskDir, run string) bool {
	return sc.pairCount[pairKey{task: taskDir, run: run}] > 0
}

// RunsOf returns the run names of a task's pairs, in pair order, duplicates
// included.
func (sc *SchedulingContext) RunsOf(taskDir string) []string {
	var runs []string
	for _, p := range sc.Pairs {
		if p.Task == taskDir {
			runs = append(runs, p.Run)
		}
	}
	return runs
}

// LastOccurrenceOf returns the id of the most recently appended occurrence
// of a task, following pair order.
func (sc *SchedulingContext) LastOccurrenceOf(taskDir string) (int, bool) {
	id, ok := sc.lastOcc[taskDir]
	return id, ok
}
