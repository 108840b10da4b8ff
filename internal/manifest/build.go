package manifest

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/taskgrid/internal/configchain"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/occurrence"
	"github.com/vk/taskgrid/internal/stage"
)

// Options controls manifest construction.
type Options struct {
	// SkipSucceeded drops task lines whose run folder already carries a
	// success marker. A block left with no lines is omitted entirely and
	// consumes no job id.
	SkipSucceeded bool
	// Header entries are copied into the manifest verbatim, in order.
	Header []configchain.KV
}

// groupKey is the block identity: stage plus grouping names.
type groupKey struct {
	stage   int
	jobName string
	backend string
}

// group accumulates one block's lines while pairs stream in.
type group struct {
	key      groupKey
	minIndex int
	lines    []TaskLine
}

// Build groups the scheduled pairs into job blocks and produces the
// manifest. Mixing the local backend with a non-local backend within one
// manifest is rejected: a single invocation cannot straddle direct execution
// and cluster submission.
func Build(ctx context.Context, sc *occurrence.SchedulingContext, stages stage.Stages, opts Options) (*Manifest, error) {
	logger := ctxlog.FromContext(ctx)

	groups := make(map[groupKey]*group)
	var order []*group

	skipped := 0
	for _, pair := range sc.Pairs {
		occ := sc.Occurrences[pair.OccurrenceID]
		if opts.SkipSucceeded && fsutil.HasSucceeded(pair.Task, pair.Run) {
			logger.Debug("Skipping already-succeeded pair.", "task", sc.Paths.Rel(pair.Task), "run", pair.Run)
			skipped++
			continue
		}
		key := groupKey{
			stage:   stages.ByOccurrence[occ.ID],
			jobName: occ.JobName,
			backend: occ.Backend,
		}
		grp, ok := groups[key]
		if !ok {
			grp = &group{key: key, minIndex: pair.Index}
			groups[key] = grp
			order = append(order, grp)
		}
		grp.lines = append(grp.lines, TaskLine{
			Index:     pair.Index,
			Run:       pair.Run,
			TaskRel:   sc.Paths.Rel(pair.Task),
			Overrides: occ.Overrides.Values(),
		})
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].key.stage != order[j].key.stage {
			return order[i].key.stage < order[j].key.stage
		}
		return order[i].minIndex < order[j].minIndex
	})

	if err := checkBackends(order); err != nil {
		return nil, err
	}

	m := &Manifest{Header: append([]configchain.KV(nil), opts.Header...)}
	idsByStage := make(map[int][]int)
	for _, grp := range order {
		id := len(m.Blocks)
		idsByStage[grp.key.stage] = append(idsByStage[grp.key.stage], id)
		m.Blocks = append(m.Blocks, JobBlock{
			ID:      id,
			Stage:   grp.key.stage,
			JobName: grp.key.jobName,
			Backend: grp.key.backend,
			Lines:   grp.lines,
		})
	}
	for i := range m.Blocks {
		m.Blocks[i].Depends = append([]int(nil), idsByStage[m.Blocks[i].Stage-1]...)
	}

	logger.Debug("Manifest built.", "blocks", len(m.Blocks), "skipped_pairs", skipped)
	return m, nil
}

// checkBackends enforces the all-local-or-all-cluster rule over the blocks
// that survived filtering.
func checkBackends(order []*group) error {
	sawLocal, sawRemote := "", ""
	for _, grp := range order {
		if IsLocalBackend(grp.key.backend) {
			sawLocal = grp.key.backend
		} else {
			sawRemote = grp.key.backend
		}
	}
	if sawLocal != "" && sawRemote != "" {
		return fmt.Errorf("manifest mixes local backend %q with cluster backend %q: one invocation cannot straddle direct execution and cluster submission", sawLocal, sawRemote)
	}
	return nil
}
