package taskpath

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
)

// hasPattern reports whether the argument needs glob resolution: shell glob
// metacharacters or an exclusion group token.
func hasPattern(arg string) bool {
	return strings.ContainsAny(arg, "*?[") || strings.Contains(arg, "!(")
}

// exclusion records a negated-subpattern group found in one path segment.
type exclusion struct {
	segment  int
	patterns []string
}

// resolvePattern expands a glob argument, honoring a single level of
// `!(a|b)` exclusion groups, and filters the matches to valid task
// directories. Matched regular files are skipped, matched parent directories
// are not descended (a pattern names tasks directly).
func (r *Resolver) resolvePattern(ctx context.Context, abs string) ([]string, error) {
	logger := ctxlog.FromContext(ctx)

	segments := strings.Split(abs, string(filepath.Separator))
	var exclusions []exclusion
	for i, seg := range segments {
		if !strings.Contains(seg, "!(") {
			continue
		}
		if !strings.HasPrefix(seg, "!(") || !strings.HasSuffix(seg, ")") {
			return nil, fmt.Errorf("unsupported exclusion pattern %q: the group must span a whole path segment", seg)
		}
		inner := seg[2 : len(seg)-1]
		if strings.Contains(inner, "!(") {
			return nil, fmt.Errorf("unsupported exclusion pattern %q: nesting is not allowed", seg)
		}
		exclusions = append(exclusions, exclusion{segment: i, patterns: strings.Split(inner, "|")})
		segments[i] = "*"
	}

	globPattern := strings.Join(segments, string(filepath.Separator))
	matches, err := filepath.Glob(globPattern)
	if err != nil {
		return nil, fmt.Errorf("bad task pattern %q: %w", globPattern, err)
	}

	var tasks []string
	for _, m := range matches {
		if excluded(m, exclusions) {
			continue
		}
		if fsutil.IsFile(m) {
			continue
		}
		if !fsutil.IsDir(m) {
			continue
		}
		if err := r.checkUnderRoot(m); err != nil {
			return nil, err
		}
		if !fsutil.IsTaskDir(m) || fsutil.IsRunOutputDir(m) {
			logger.Debug("Pattern match is not a task directory, skipping.", "path", m)
			continue
		}
		tasks = append(tasks, m)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no task directories match pattern %s", r.Rel(abs))
	}
	return tasks, nil
}

func excluded(path string, exclusions []exclusion) bool {
	if len(exclusions) == 0 {
		return false
	}
	segments := strings.Split(path, string(filepath.Separator))
	for _, ex := range exclusions {
		if ex.segment >= len(segments) {
			continue
		}
		for _, pat := range ex.patterns {
			if ok, _ := filepath.Match(pat, segments[ex.segment]); ok {
				return true
			}
		}
	}
	return false
}
