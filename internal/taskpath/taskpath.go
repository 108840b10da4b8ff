// Package taskpath resolves user-supplied path arguments into validated
// task directories under the workspace tasks root.
package taskpath

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
)

// exclusionGroupRe matches a single `!(a|b)` exclusion group.
var exclusionGroupRe = regexp.MustCompile(`!\([^)]*\)`)

// forbidden are shell metacharacters that must never appear in a task spec.
// Glob syntax (* ? [ ]) and the exclusion group !(..) are excluded from the
// check. Dependency strings are resolved through this package too, so this
// guards against attacker-influenced dependency entries reaching any
// downstream shell expansion.
const forbidden = "$`\"';&|<>{}()~ \t\n"

// Resolver resolves task path arguments against a fixed tasks root.
type Resolver struct {
	// Root is the workspace root directory (absolute).
	Root string
	// TasksRoot is the absolute path of the tasks tree; every resolved
	// task must lie under it.
	TasksRoot string
}

// Rel returns the task's display path relative to the workspace root, e.g.
// "tasks/experiments/matmul". Used in dependency labels and manifests.
func (r *Resolver) Rel(taskDir string) string {
	rel, err := filepath.Rel(r.Root, taskDir)
	if err != nil {
		return taskDir
	}
	return filepath.ToSlash(rel)
}

// Resolve turns a single path argument into a deduplicated list of absolute
// task directories. Arguments may be literal task directories, parent
// directories (resolved recursively), or glob patterns with one level of
// `!(a|b)` exclusion. Literal files are skipped so that glob expansions that
// happen to match non-directory siblings are not errors.
func (r *Resolver) Resolve(ctx context.Context, arg string) ([]string, error) {
	logger := ctxlog.FromContext(ctx).With("arg", arg)

	// The `|` separator is legal only inside an exclusion group, so the
	// groups are stripped before the metacharacter check.
	if strings.ContainsAny(exclusionGroupRe.ReplaceAllString(arg, ""), forbidden) {
		return nil, fmt.Errorf("task spec %q contains forbidden shell characters", arg)
	}

	abs := arg
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.Root, arg)
	}
	abs = filepath.Clean(abs)

	if hasPattern(arg) {
		return r.resolvePattern(ctx, abs)
	}

	// Confinement comes before the file-skip so a file outside the tasks
	// root is rejected, not silently ignored.
	if err := r.checkUnderRoot(abs); err != nil {
		return nil, err
	}
	if fsutil.IsFile(abs) {
		logger.Debug("Argument is a regular file, skipping.")
		return nil, nil
	}
	if !fsutil.IsDir(abs) {
		return nil, fmt.Errorf("task path does not exist: %s", arg)
	}

	if fsutil.IsTaskDir(abs) {
		if fsutil.IsRunOutputDir(abs) {
			return nil, fmt.Errorf("%s is a run output directory, not a task", r.Rel(abs))
		}
		return []string{abs}, nil
	}

	// Parent mode: collect every descendant task directory.
	logger.Debug("Argument has no task marker, descending as parent directory.")
	tasks, err := r.collectDescendants(abs)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no task directories found under %s", r.Rel(abs))
	}
	return tasks, nil
}

// ResolveAll resolves a list of arguments and returns the union in
// first-appearance order, deduplicated across arguments.
func (r *Resolver) ResolveAll(ctx context.Context, args []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, arg := range args {
		tasks, err := r.Resolve(ctx, arg)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (r *Resolver) checkUnderRoot(abs string) error {
	rel, err := filepath.Rel(r.TasksRoot, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("resolved path %s lies outside the tasks root %s", abs, r.TasksRoot)
	}
	return nil
}

func (r *Resolver) collectDescendants(parent string) ([]string, error) {
	var tasks []string
	err := filepath.WalkDir(parent, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if fsutil.IsRunOutputDir(path) {
			return fs.SkipDir
		}
		if fsutil.IsTaskDir(path) {
			tasks = append(tasks, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", parent, err)
	}
	return tasks, nil
}
