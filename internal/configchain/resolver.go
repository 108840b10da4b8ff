// Package configchain evaluates a task's hierarchical configuration chain
// and exposes the query surface the scheduling core depends on. The core
// never reads task configuration directly; it goes through Resolver so tests
// can substitute a deterministic in-memory implementation.
package configchain

import (
	"context"
	"strings"
)

// Resolver answers configuration queries for a task directory under a given
// override context. Each method is a pure function of (task directory,
// override context) for the duration of one invocation.
type Resolver interface {
	// RunSpec returns the task's effective default run specification.
	RunSpec(ctx context.Context, taskDir string, ovr Context) (string, error)
	// Backend returns the task's effective execution-backend identity.
	Backend(ctx context.Context, taskDir string, ovr Context) (string, error)
	// JobName returns the task's effective job grouping name.
	JobName(ctx context.Context, taskDir string, ovr Context) (string, error)
	// DependsOn returns the task's raw dependency entries, each of the form
	// "task_path[:run_spec]".
	DependsOn(ctx context.Context, taskDir string, ovr Context) ([]string, error)
	// Disabled reports whether the task's resolved "disabled" flag is truthy.
	Disabled(ctx context.Context, taskDir string, ovr Context) (bool, error)
	// Command returns the task's entry command line. Only executors use it;
	// the scheduling core never runs anything.
	Command(ctx context.Context, taskDir string, ovr Context) (string, error)
}

// Truthy reports whether a flag value counts as set: "true", "1" or "yes",
// case-insensitive.
func Truthy(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	}
	return false
}
