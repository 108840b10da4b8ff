package app

import "fmt"

// Config holds everything one App invocation needs.
type Config struct {
	// Dir is the workspace root.
	Dir string
	// Args are the positional arguments: task specs interleaved with
	// KEY=VALUE override assignments.
	Args []string

	// AutoInclude expands the invocation to cover missing dependency tasks
	// instead of failing.
	AutoInclude bool
	// SkipSucceeded drops pairs whose run already carries a success marker.
	SkipSucceeded bool
	// Clean removes matching run folders instead of scheduling.
	Clean bool
	// Status reports the newest manifest instead of scheduling.
	Status bool
	// DryRun stops after writing the manifest.
	DryRun bool
	// Backend overrides the execution backend for every pair.
	Backend string

	LogFormat string
	LogLevel  string
}

// NewConfig validates and normalizes a Config.
func NewConfig(c Config) (*Config, error) {
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.Clean && c.Status {
		return nil, fmt.Errorf("-clean and -status are mutually exclusive")
	}
	if len(c.Args) == 0 && !c.Status {
		return nil, fmt.Errorf("at least one task spec is required")
	}
	return &c, nil
}
