package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
)

// clean resolves the specs against existing run folders and removes them.
// Only directories recognizable as run outputs are deleted; anything else
// under a task directory stays untouched.
func (a *App) clean(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	sc := a.newSchedulingContext()
	sc.Clean = true
	if err := sc.AddSpecs(ctx, a.specs); err != nil {
		return err
	}
	if len(sc.Pairs) == 0 {
		logger.Info("No run folders match.")
		return nil
	}

	removed := 0
	for _, pair := range sc.Pairs {
		runDir := filepath.Join(pair.Task, pair.Run)
		if !fsutil.IsDir(runDir) {
			continue
		}
		if !fsutil.IsRunOutputDir(runDir) {
			return fmt.Errorf("refusing to remove %s: not a run output directory", a.paths.Rel(pair.Task)+"/"+pair.Run)
		}
		if err := os.RemoveAll(runDir); err != nil {
			return fmt.Errorf("removing %s: %w", runDir, err)
		}
		logger.Info("Removed run folder.", "task", a.paths.Rel(pair.Task), "run", pair.Run)
		removed++
	}
	logger.Info("Clean finished.", "removed", removed)
	return nil
}
