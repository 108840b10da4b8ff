package occurrence

import (
	"context"
	"fmt"

	"github.com/vk/taskgrid/internal/configchain"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/runspec"
)

// AddSpecs expands each spec in order into the context's pair list.
func (sc *SchedulingContext) AddSpecs(ctx context.Context, specs []Spec) error {
	for _, spec := range specs {
		if err := sc.AddSpec(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// AddSpec resolves one task spec into pairs. The spec's task directories are
// resolved first; disabled tasks drop out entirely. Run names come from the
// spec's explicit run spec, or from each task's effective default, or from
// existing run folders in clean mode. Pairs are emitted run-first,
// task-second: run index 0 of every task, then run index 1 of every task,
// and so on, interleaving sibling tasks the way array execution expects.
func (sc *SchedulingContext) AddSpec(ctx context.Context, spec Spec) error {
	logger := ctxlog.FromContext(ctx)
	path, rspec := spec.SplitRaw()

	if !sc.Clean && runspec.HasWildcard(rspec) {
		return fmt.Errorf("task spec %q: wildcard run specs are only valid in dependencies and clean mode", spec.Raw)
	}

	resolved, err := sc.Paths.Resolve(ctx, path)
	if err != nil {
		return err
	}

	tasks, err := sc.filterDisabled(ctx, resolved, spec.Overrides)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		logger.Debug("Spec resolved to no enabled tasks.", "spec", spec.Raw)
		return nil
	}

	runsByTask := make(map[string][]string, len(tasks))
	maxRuns := 0
	for _, task := range tasks {
		runs, err := sc.runsFor(ctx, task, rspec, spec.Overrides)
		if err != nil {
			return err
		}
		runsByTask[task] = append(runsByTask[task], runs...)
		if len(runsByTask[task]) > maxRuns {
			maxRuns = len(runsByTask[task])
		}
	}

	for i := 0; i < maxRuns; i++ {
		for _, task := range tasks {
			runs := runsByTask[task]
			if i >= len(runs) {
				continue
			}
			if err := sc.appendPair(ctx, task, runs[i], spec.Overrides); err != nil {
				return err
			}
		}
	}
	return nil
}

// filterDisabled drops tasks whose resolved "disabled" flag is truthy under
// the spec's override context. Being disabled is not an error: the task is
// simply invisible to the invocation, including to dependency validation.
func (sc *SchedulingContext) filterDisabled(ctx context.Context, tasks []string, ovr configchain.Context) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	var alive []string
	for _, task := range tasks {
		disabled, err := sc.Config.Disabled(ctx, task, ovr)
		if err != nil {
			return nil, err
		}
		if disabled {
			logger.Debug("Skipping disabled task.", "task", task)
			continue
		}
		alive = append(alive, task)
	}
	return alive, nil
}

// runsFor computes the run-name list of one task for one spec mention.
func (sc *SchedulingContext) runsFor(ctx context.Context, task, rspec string, ovr configchain.Context) ([]string, error) {
	if sc.Clean {
		pattern := rspec
		if pattern == "" {
			pattern = "*"
		}
		return runspec.ExpandGlob(task, pattern)
	}
	if rspec == "" {
		def, err := sc.Config.RunSpec(ctx, task, ovr)
		if err != nil {
			return nil, err
		}
		rspec = def
	}
	return runspec.Expand(rspec)
}

// appendPair records one concrete execution, creating the occurrence on
// first sighting of its (task, normalized context) identity.
func (sc *SchedulingContext) appendPair(ctx context.Context, task, run string, ovr configchain.Context) error {
	key := occKey{task: task, ctx: ovr.Canonical()}
	id, ok := sc.occIDs[key]
	if !ok {
		occ, err := sc.newOccurrence(ctx, task, ovr)
		if err != nil {
			return err
		}
		id = occ.ID
		sc.occIDs[key] = id
	}

	if !sc.taskSeen[task] {
		sc.taskSeen[task] = true
		sc.TaskList = append(sc.TaskList, task)
	}
	sc.pairCount[pairKey{task: task, run: run}]++
	sc.lastOcc[task] = id
	sc.Pairs = append(sc.Pairs, Pair{
		Index:        len(sc.Pairs),
		Task:         task,
		Run:          run,
		OccurrenceID: id,
	})
	return nil
}

func (sc *SchedulingContext) newOccurrence(ctx context.Context, task string, ovr configchain.Context) (*Occurrence, error) {
	backend, err := sc.Config.Backend(ctx, task, ovr)
	if err != nil {
		return nil, err
	}
	if backend == "" {
		backend = sc.DefaultBackend
	}
	if backend == "" {
		backend = "local"
	}
	jobName, err := sc.Config.JobName(ctx, task, ovr)
	if err != nil {
		return nil, err
	}
	occ := &Occurrence{
		ID:        len(sc.Occurrences),
		Task:      task,
		Overrides: ovr.Normalize(),
		Backend:   backend,
		JobName:   jobName,
	}
	sc.Occurrences = append(sc.Occurrences, occ)
	ctxlog.FromContext(ctx).Debug("New occurrence.", "id", occ.ID, "task", task, "backend", backend, "job", jobName)
	return occ, nil
}
