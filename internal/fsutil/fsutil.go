// Package fsutil provides file system utility functions and the on-disk
// marker conventions shared by the resolver, validator and executors.
package fsutil

import (
	"os"
	"path/filepath"
	"sort"
)

// TaskMarker is the entry-point file that makes a directory a task definition.
const TaskMarker = "task.hcl"

// DefaultsFile is the per-directory configuration file evaluated along the
// inheritance chain from the tasks root down to a task directory.
const DefaultsFile = "defaults.hcl"

// SuccessMarker is the zero-byte file an executor writes into a run folder
// when the run finished with exit code 0. The scheduling core only ever
// tests it for existence.
const SuccessMarker = ".taskgrid_succeeded"

// StartedMarker is written by an executor when a run begins.
const StartedMarker = ".taskgrid_started"

// RunInfoFile holds the per-run metadata bundle written by an executor.
const RunInfoFile = "run_info.yaml"

// runOutputMarkers identify a directory as the output of a prior run. A
// directory carrying any of these is never a task definition.
var runOutputMarkers = []string{SuccessMarker, StartedMarker, RunInfoFile}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsFile reports whether path exists and is a regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsTaskDir reports whether dir contains the task entry-point marker.
func IsTaskDir(dir string) bool {
	return IsFile(filepath.Join(dir, TaskMarker))
}

// IsRunOutputDir reports whether dir carries any framework marker written by
// an executor, identifying it as a run's output folder rather than a task.
func IsRunOutputDir(dir string) bool {
	for _, m := range runOutputMarkers {
		if IsFile(filepath.Join(dir, m)) {
			return true
		}
	}
	return false
}

// RunFolders returns the names of the existing run folders of a task,
// sorted lexicographically. A run folder is any subdirectory of the task
// directory that is not itself a task definition (nested task directories
// are sub-tasks, not runs).
func RunFolders(taskDir string) ([]string, error) {
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return nil, err
	}
	var runs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if IsTaskDir(filepath.Join(taskDir, e.Name())) {
			continue
		}
		runs = append(runs, e.Name())
	}
	sort.Strings(runs)
	return runs, nil
}

// HasSucceeded reports whether the named run of a task carries the success
// marker on disk.
func HasSucceeded(taskDir, run string) bool {
	return IsFile(filepath.Join(taskDir, run, SuccessMarker))
}
