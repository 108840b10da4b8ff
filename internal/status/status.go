// Package status reports the completion state of the newest invocation's
// manifest against the success markers on disk.
package status

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/manifest"
)

// lineState classifies one task line of a manifest.
type lineState string

const (
	stateSucceeded lineState = "succeeded"
	stateStarted   lineState = "started"
	statePending   lineState = "pending"
)

// Report reads the newest invocation directory under manifestsRoot and
// writes a per-job summary of run states to w.
func Report(ctx context.Context, root, manifestsRoot string, w io.Writer) error {
	logger := ctxlog.FromContext(ctx)
	dir, err := manifest.LatestInvocationDir(manifestsRoot)
	if err != nil {
		return err
	}
	m, err := manifest.ReadFile(dir)
	if err != nil {
		return fmt.Errorf("reading manifest in %s: %w", dir, err)
	}
	logger.Debug("Reporting status.", "invocation", dir, "jobs", len(m.Blocks))

	fmt.Fprintf(w, "invocation: %s\n", filepath.Base(dir))
	totals := map[lineState]int{}
	for _, block := range m.Blocks {
		fmt.Fprintf(w, "job %d (%s, backend %s):\n", block.ID, block.JobName, block.Backend)
		for _, line := range block.Lines {
			st := classify(root, line)
			totals[st]++
			fmt.Fprintf(w, "  %-10s %s:%s\n", st, line.TaskRel, line.Run)
		}
	}
	fmt.Fprintf(w, "total: %d succeeded, %d started, %d pending\n",
		totals[stateSucceeded], totals[stateStarted], totals[statePending])
	return nil
}

func classify(root string, line manifest.TaskLine) lineState {
	taskDir := filepath.Join(root, filepath.FromSlash(line.TaskRel))
	if fsutil.HasSucceeded(taskDir, line.Run) {
		return stateSucceeded
	}
	if fsutil.IsFile(filepath.Join(taskDir, line.Run, fsutil.StartedMarker)) {
		return stateStarted
	}
	return statePending
}
