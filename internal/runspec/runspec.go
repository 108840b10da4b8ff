// Package runspec expands compact run specifications into explicit run name
// lists. A spec is a comma-separated sequence of entries; an entry is either
// a literal run name or an inclusive integer range `prefix:start:end`.
package runspec

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vk/taskgrid/internal/fsutil"
)

// Expand turns a spec string into the ordered list of run names it denotes.
// Entries are concatenated in input order; a range entry `prefix:start:end`
// contributes `prefix<n>` for every n in [start, end] ascending, and an
// empty range (start > end) contributes nothing. Blank entries from stray
// commas or whitespace are dropped. No deduplication is performed.
func Expand(spec string) ([]string, error) {
	var runs []string
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		expanded, err := expandEntry(entry)
		if err != nil {
			return nil, err
		}
		runs = append(runs, expanded...)
	}
	return runs, nil
}

func expandEntry(entry string) ([]string, error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 3 {
		// Literal run name; a single colon is not range syntax.
		return []string{entry}, nil
	}
	prefix := parts[0]
	start, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("run spec entry %q: bad range start: %w", entry, err)
	}
	end, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("run spec entry %q: bad range end: %w", entry, err)
	}
	var runs []string
	for n := start; n <= end; n++ {
		runs = append(runs, prefix+strconv.Itoa(n))
	}
	return runs, nil
}

// HasWildcard reports whether the spec contains shell-style glob
// metacharacters and should be resolved against existing run folders.
func HasWildcard(spec string) bool {
	return strings.ContainsAny(spec, "*?")
}

// ExpandGlob matches a glob pattern against the run folders that exist on
// disk for the given task directory and returns the matches sorted and
// deduplicated. It never invents run names: a pattern that matches nothing
// yields an empty list. Used for dependency and clean resolution only.
func ExpandGlob(taskDir, pattern string) ([]string, error) {
	folders, err := fsutil.RunFolders(taskDir)
	if err != nil {
		return nil, fmt.Errorf("listing run folders of %s: %w", taskDir, err)
	}
	var matches []string
	seen := make(map[string]bool)
	for _, name := range folders {
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("bad run pattern %q: %w", pattern, err)
		}
		if ok && !seen[name] {
			seen[name] = true
			matches = append(matches, name)
		}
	}
	return matches, nil
}
