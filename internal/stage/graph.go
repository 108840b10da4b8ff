// Package stage builds the dependency graph over occurrence ids and assigns
// topological stages. Two separately-named construction rules contribute
// edges: explicit declared dependencies and implicit sequential ordering of
// repeated concrete pairs.
package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/occurrence"
)

// edge is a directed dependency: To cannot start before From finished.
type edge struct {
	From int
	To   int
}

// Graph is the occurrence dependency graph of one invocation.
type Graph struct {
	nodeCount int
	labels    []string
	edges     map[edge]bool
	out       map[int][]int
	indegree  map[int]int
}

func newGraph(nodeCount int) *Graph {
	return &Graph{
		nodeCount: nodeCount,
		labels:    make([]string, nodeCount),
		edges:     make(map[edge]bool),
		out:       make(map[int][]int),
		indegree:  make(map[int]int),
	}
}

// addEdge inserts a deduplicated edge. Self-references are dropped: an
// occurrence depending on its own task is satisfied by markers or by other
// runs of itself, never by ordering against itself.
func (g *Graph) addEdge(from, to int) {
	if from == to {
		return
	}
	e := edge{From: from, To: to}
	if g.edges[e] {
		return
	}
	g.edges[e] = true
	g.out[from] = append(g.out[from], to)
	g.indegree[to]++
}

// Build constructs the graph for a scheduling context. depTasks carries, per
// occurrence id, the dependency task directories its declared entries
// resolved to (as reported by the validator).
func Build(ctx context.Context, sc *occurrence.SchedulingContext, depTasks map[int][]string) *Graph {
	logger := ctxlog.FromContext(ctx)
	g := newGraph(len(sc.Occurrences))
	for _, occ := range sc.Occurrences {
		g.labels[occ.ID] = sc.Paths.Rel(occ.Task)
	}
	linkExplicit(ctx, sc, depTasks, g)
	linkImplicit(ctx, sc, g)
	logger.Debug("Dependency graph constructed.", "occurrences", g.nodeCount, "edges", len(g.edges))
	return g
}

// Stages holds the computed topological layering.
type Stages struct {
	// ByOccurrence maps each occurrence id to its stage.
	ByOccurrence map[int]int
	// Layers lists the occurrence ids of each stage in ascending id order.
	Layers [][]int
}

// Max returns the highest stage number, or -1 for an empty graph.
func (s Stages) Max() int {
	return len(s.Layers) - 1
}

// Compute runs Kahn's algorithm over the graph: every occurrence with zero
// remaining in-degree joins the current stage, its dependents' in-degrees
// drop, and the stage counter advances. If no occurrence is free while some
// remain, the graph has a cycle and nothing is scheduled.
func (g *Graph) Compute(ctx context.Context) (Stages, error) {
	logger := ctxlog.FromContext(ctx)
	remaining := make(map[int]int, g.nodeCount)
	for id := 0; id < g.nodeCount; id++ {
		remaining[id] = g.indegree[id]
	}

	stages := Stages{ByOccurrence: make(map[int]int, g.nodeCount)}
	assigned := 0
	for assigned < g.nodeCount {
		var layer []int
		for id := 0; id < g.nodeCount; id++ {
			if deg, ok := remaining[id]; ok && deg == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			return Stages{}, cycleError(g, remaining)
		}
		stage := len(stages.Layers)
		for _, id := range layer {
			delete(remaining, id)
			stages.ByOccurrence[id] = stage
			for _, dep := range g.out[id] {
				if _, ok := remaining[dep]; ok {
					remaining[dep]--
				}
			}
		}
		stages.Layers = append(stages.Layers, layer)
		assigned += len(layer)
	}

	logger.Debug("Stage assignment complete.", "stages", len(stages.Layers))
	return stages, nil
}

// cycleError names the occurrences still blocked when Kahn's algorithm
// stalls. Every remaining node is on or downstream of a cycle; listing them
// gives the user a concrete place to look.
func cycleError(g *Graph, remaining map[int]int) error {
	var stuck []string
	for id := 0; id < g.nodeCount; id++ {
		if _, ok := remaining[id]; ok {
			stuck = append(stuck, fmt.Sprintf("%s (occurrence %d)", g.labels[id], id))
		}
	}
	return fmt.Errorf("dependency cycle detected among: %s", strings.Join(stuck, ", "))
}
