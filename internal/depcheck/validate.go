// Package depcheck validates the declared dependencies of every occurrence
// in an invocation against two sources of truth: the invocation's own pair
// list and persisted success markers on disk. All unsatisfied requirements
// are accumulated before failing so the report is complete.
package depcheck

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/occurrence"
	"github.com/vk/taskgrid/internal/runspec"
)

// Missing is one unsatisfied dependency requirement.
type Missing struct {
	// Dep labels the unsatisfied requirement, e.g. "tasks/prep:run3" or
	// "tasks/prep:run* (no matching run folders on disk)".
	Dep string
	// RequiredBy labels the requiring task, e.g. "tasks/train".
	RequiredBy string
}

// Report is the outcome of validating one resolution pass.
type Report struct {
	// Missing lists every unsatisfied requirement in discovery order.
	Missing []Missing
	// DepTasks maps each occurrence id to the dependency task directories
	// its entries resolved to, in resolution order. The stage scheduler
	// consumes this to draw explicit edges.
	DepTasks map[int][]string

	// needs collects, per dependency task absent from the invocation, the
	// concrete run names auto-include should request (empty list means the
	// task's default run spec).
	needs map[string]*need
	order []string
}

type need struct {
	runs []string
	seen map[string]bool
	ovr  occurrence.Spec // carries the requiring occurrence's context
}

// Validate resolves and checks every occurrence's dependency entries. An
// error return means resolution itself failed (bad path, forbidden
// characters); unsatisfied dependencies are reported through the Report.
func Validate(ctx context.Context, sc *occurrence.SchedulingContext) (*Report, error) {
	logger := ctxlog.FromContext(ctx)
	rep := &Report{
		DepTasks: make(map[int][]string),
		needs:    make(map[string]*need),
	}

	for _, occ := range sc.Occurrences {
		entries, err := sc.Config.DependsOn(ctx, occ.Task, occ.Overrides)
		if err != nil {
			return nil, fmt.Errorf("resolving dependencies of %s: %w", sc.Paths.Rel(occ.Task), err)
		}
		logger.Debug("Validating occurrence dependencies.", "occurrence", occ.ID, "task", sc.Paths.Rel(occ.Task), "entries", len(entries))
		for _, entry := range entries {
			if err := rep.checkEntry(ctx, sc, occ, entry); err != nil {
				return nil, err
			}
		}
	}
	return rep, nil
}

// checkEntry resolves one raw dependency entry and applies the satisfaction
// mode its run spec selects.
func (rep *Report) checkEntry(ctx context.Context, sc *occurrence.SchedulingContext, occ *occurrence.Occurrence, entry string) error {
	path, rspec, _ := strings.Cut(entry, ":")
	depTasks, err := sc.Paths.Resolve(ctx, path)
	if err != nil {
		return fmt.Errorf("dependency %q of %s: %w", entry, sc.Paths.Rel(occ.Task), err)
	}

	for _, depTask := range depTasks {
		rep.DepTasks[occ.ID] = append(rep.DepTasks[occ.ID], depTask)

		var checkErr error
		switch {
		case rspec == "":
			checkErr = rep.checkAllRuns(sc, occ, depTask)
		case runspec.HasWildcard(rspec):
			checkErr = rep.checkWildcard(sc, occ, depTask, rspec)
		default:
			checkErr = rep.checkExplicit(sc, occ, depTask, rspec)
		}
		if checkErr != nil {
			return checkErr
		}
	}
	return nil
}

// checkAllRuns handles an entry with no run spec: every run folder on disk
// must carry a success marker, and at least one run must exist on disk or in
// the invocation.
func (rep *Report) checkAllRuns(sc *occurrence.SchedulingContext, occ *occurrence.Occurrence, depTask string) error {
	disk, err := fsutil.RunFolders(depTask)
	if err != nil {
		return err
	}
	invRuns := sc.RunsOf(depTask)

	if len(disk) == 0 && len(invRuns) == 0 {
		rep.add(sc, occ, depTask, sc.Paths.Rel(depTask), nil)
		return nil
	}
	for _, run := range disk {
		if fsutil.HasSucceeded(depTask, run) || sc.HasPair(depTask, run) {
			continue
		}
		rep.add(sc, occ, depTask, sc.Paths.Rel(depTask)+":"+run, []string{run})
	}
	return nil
}

// checkWildcard handles a glob run spec: the requirement set is every disk
// run folder matching the pattern plus any matching invocation pairs. A
// pattern matching nothing at all is itself unsatisfied, with a distinct
// label so the two failure shapes stay distinguishable.
func (rep *Report) checkWildcard(sc *occurrence.SchedulingContext, occ *occurrence.Occurrence, depTask, pattern string) error {
	disk, err := runspec.ExpandGlob(depTask, pattern)
	if err != nil {
		return err
	}
	matched := len(disk) > 0
	for _, run := range sc.RunsOf(depTask) {
		if ok, _ := filepath.Match(pattern, run); ok {
			matched = true
		}
	}

	if !matched {
		rep.add(sc, occ, depTask, sc.Paths.Rel(depTask)+":"+pattern+" (no matching run folders on disk)", nil)
		return nil
	}
	for _, run := range disk {
		if fsutil.HasSucceeded(depTask, run) || sc.HasPair(depTask, run) {
			continue
		}
		rep.add(sc, occ, depTask, sc.Paths.Rel(depTask)+":"+run, []string{run})
	}
	return nil
}

// checkExplicit handles a literal or range run spec: every expanded run name
// must be satisfied by an invocation pair or a success marker.
func (rep *Report) checkExplicit(sc *occurrence.SchedulingContext, occ *occurrence.Occurrence, depTask, rspec string) error {
	runs, err := runspec.Expand(rspec)
	if err != nil {
		return fmt.Errorf("dependency run spec %q on %s: %w", rspec, sc.Paths.Rel(depTask), err)
	}
	for _, run := range runs {
		if sc.HasPair(depTask, run) || fsutil.HasSucceeded(depTask, run) {
			continue
		}
		rep.add(sc, occ, depTask, sc.Paths.Rel(depTask)+":"+run, []string{run})
	}
	return nil
}

// add records one unsatisfied requirement and, when the dependency task is
// entirely absent from the invocation, the runs auto-include should request.
func (rep *Report) add(sc *occurrence.SchedulingContext, occ *occurrence.Occurrence, depTask, depLabel string, runs []string) {
	rep.Missing = append(rep.Missing, Missing{Dep: depLabel, RequiredBy: sc.Paths.Rel(occ.Task)})

	if sc.HasTask(depTask) {
		return
	}
	n, ok := rep.needs[depTask]
	if !ok {
		n = &need{
			seen: make(map[string]bool),
			ovr:  occurrence.Spec{Overrides: occ.Overrides},
		}
		rep.needs[depTask] = n
		rep.order = append(rep.order, depTask)
	}
	for _, run := range runs {
		if !n.seen[run] {
			n.seen[run] = true
			n.runs = append(n.runs, run)
		}
	}
}
