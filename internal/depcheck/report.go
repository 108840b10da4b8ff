package depcheck

import (
	"fmt"
	"strings"

	"github.com/vk/taskgrid/internal/occurrence"
)

// Satisfied reports whether validation found no unsatisfied requirements.
func (rep *Report) Satisfied() bool {
	return len(rep.Missing) == 0
}

// MissingError renders the aggregated missing-dependency report as a single
// error, grouping each dependency with every task that requires it. Returns
// nil when everything is satisfied.
func (rep *Report) MissingError() error {
	if rep.Satisfied() {
		return nil
	}

	byDep := make(map[string][]string)
	var depOrder []string
	for _, m := range rep.Missing {
		if _, ok := byDep[m.Dep]; !ok {
			depOrder = append(depOrder, m.Dep)
		}
		if !contains(byDep[m.Dep], m.RequiredBy) {
			byDep[m.Dep] = append(byDep[m.Dep], m.RequiredBy)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d unsatisfied dependencies:", len(depOrder))
	for _, dep := range depOrder {
		fmt.Fprintf(&b, "\n  %s\n    required by %s", dep, strings.Join(byDep[dep], ", "))
	}
	return fmt.Errorf("%s", b.String())
}

// AutoIncludeSpecs synthesizes task specs for every missing dependency whose
// task has no occurrence in the invocation. Each spec names the concrete
// unsatisfied runs when they are known, and falls back to the dependency
// task's default run spec otherwise. The requiring occurrence's override
// context carries over.
func (rep *Report) AutoIncludeSpecs() []occurrence.Spec {
	var specs []occurrence.Spec
	for _, depTask := range rep.order {
		n := rep.needs[depTask]
		// The synthesized path goes back through the task resolver, so use
		// the absolute directory: it is already validated to be a task.
		raw := depTask
		if len(n.runs) > 0 {
			raw += ":" + strings.Join(n.runs, ",")
		}
		specs = append(specs, occurrence.Spec{Raw: raw, Overrides: n.ovr.Overrides})
	}
	return specs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
