package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/taskpath"
)

// Workspace is a throwaway on-disk workspace for scheduling tests.
type Workspace struct {
	t *testing.T
	// Root is the workspace root directory.
	Root string
	// TasksRoot is Root/tasks.
	TasksRoot string
}

// NewWorkspace creates an empty workspace with a tasks root under a temp
// directory cleaned up with the test.
func NewWorkspace(t *testing.T) *Workspace {
	t.Helper()
	root := t.TempDir()
	// Resolve symlinks up front (macOS tempdirs live behind /private) so
	// path comparisons stay stable.
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	tasksRoot := filepath.Join(resolved, "tasks")
	require.NoError(t, os.MkdirAll(tasksRoot, 0o755))
	return &Workspace{t: t, Root: resolved, TasksRoot: tasksRoot}
}

// Paths returns a task path resolver over the workspace.
func (w *Workspace) Paths() *taskpath.Resolver {
	return &taskpath.Resolver{Root: w.Root, TasksRoot: w.TasksRoot}
}

// AddTask creates a task directory (with its entry-point marker) at the
// given path relative to the tasks root and returns its absolute path.
// content is written into task.hcl; empty content writes an empty file.
func (w *Workspace) AddTask(rel, content string) string {
	w.t.Helper()
	dir := filepath.Join(w.TasksRoot, filepath.FromSlash(rel))
	require.NoError(w.t, os.MkdirAll(dir, 0o755))
	require.NoError(w.t, os.WriteFile(filepath.Join(dir, fsutil.TaskMarker), []byte(content), 0o644))
	return dir
}

// AddDir creates a plain directory under the tasks root, without a task
// marker, and returns its absolute path.
func (w *Workspace) AddDir(rel string) string {
	w.t.Helper()
	dir := filepath.Join(w.TasksRoot, filepath.FromSlash(rel))
	require.NoError(w.t, os.MkdirAll(dir, 0o755))
	return dir
}

// AddDefaults writes a defaults.hcl into a directory relative to the tasks
// root ("." for the tasks root itself).
func (w *Workspace) AddDefaults(rel, content string) {
	w.t.Helper()
	dir := filepath.Join(w.TasksRoot, filepath.FromSlash(rel))
	require.NoError(w.t, os.MkdirAll(dir, 0o755))
	require.NoError(w.t, os.WriteFile(filepath.Join(dir, fsutil.DefaultsFile), []byte(content), 0o644))
}

// AddRun creates a run folder for a task. succeeded controls whether the
// success marker is written; the started marker is always present, matching
// what an executor leaves behind.
func (w *Workspace) AddRun(taskRel, run string, succeeded bool) string {
	w.t.Helper()
	runDir := filepath.Join(w.TasksRoot, filepath.FromSlash(taskRel), run)
	require.NoError(w.t, os.MkdirAll(runDir, 0o755))
	require.NoError(w.t, os.WriteFile(filepath.Join(runDir, fsutil.StartedMarker), nil, 0o644))
	if succeeded {
		require.NoError(w.t, os.WriteFile(filepath.Join(runDir, fsutil.SuccessMarker), nil, 0o644))
	}
	return runDir
}
