package stage

import (
	"context"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/occurrence"
)

// linkImplicit adds sequential edges for repeated concrete pairs: the same
// (task, run) appearing twice in the pair list under different occurrences
// means both executions write the same run folder, so they must re-execute
// in their original order. Consecutive distinct occurrences are chained; the
// chain carries the full ordering without pairwise multi-edges.
func linkImplicit(ctx context.Context, sc *occurrence.SchedulingContext, g *Graph) {
	logger := ctxlog.FromContext(ctx)

	type concrete struct {
		task string
		run  string
	}
	lastOcc := make(map[concrete]int)

	for _, pair := range sc.Pairs {
		key := concrete{task: pair.Task, run: pair.Run}
		if prev, ok := lastOcc[key]; ok && prev != pair.OccurrenceID {
			logger.Debug("Linking implicit sequential dependency.", "from", prev, "to", pair.OccurrenceID, "task", pair.Task, "run", pair.Run)
			g.addEdge(prev, pair.OccurrenceID)
		}
		lastOcc[key] = pair.OccurrenceID
	}
}
