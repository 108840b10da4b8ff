package stage

import (
	"context"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/occurrence"
)

// linkExplicit draws an edge for every declared dependency whose task has at
// least one occurrence in the current invocation. The edge targets the
// dependency task's *last-seen* occurrence in pair order.
//
// Targeting only the last occurrence is a deliberate simplification carried
// over from the original behavior. When a dependency task has two
// occurrences sharing run names, the implicit sequential edges already chain
// them, so the last one transitively dominates. With three or more
// occurrences over disjoint run sets, a dependent that actually means an
// earlier occurrence still gets ordered after the last one only; changing
// this to target all occurrences would be the stricter fix and is pinned by
// tests so any change here is deliberate.
func linkExplicit(ctx context.Context, sc *occurrence.SchedulingContext, depTasks map[int][]string, g *Graph) {
	logger := ctxlog.FromContext(ctx)
	for _, occ := range sc.Occurrences {
		for _, depTask := range depTasks[occ.ID] {
			depID, ok := sc.LastOccurrenceOf(depTask)
			if !ok {
				// Dependency satisfied purely from disk; nothing to order.
				continue
			}
			logger.Debug("Linking explicit dependency.", "from", depID, "to", occ.ID, "dep_task", depTask)
			g.addEdge(depID, occ.ID)
		}
	}
}
