package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/vk/taskgrid/internal/backend"
	"github.com/vk/taskgrid/internal/configchain"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/depcheck"
	"github.com/vk/taskgrid/internal/manifest"
	"github.com/vk/taskgrid/internal/occurrence"
	"github.com/vk/taskgrid/internal/stage"
)

// schedule runs the full pipeline: occurrence building, dependency
// validation (with the auto-include fixed point), stage computation,
// manifest emission, then execution or delegation.
func (a *App) schedule(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	sc, rep, err := a.resolve(ctx)
	if err != nil {
		return err
	}
	if len(sc.Pairs) == 0 {
		logger.Warn("Invocation resolved to no runnable pairs.")
		return nil
	}

	graph := stage.Build(ctx, sc, rep.DepTasks)
	stages, err := graph.Compute(ctx)
	if err != nil {
		return err
	}
	logger.Info("Stages computed.", "occurrences", len(sc.Occurrences), "stages", stages.Max()+1)

	m, err := manifest.Build(ctx, sc, stages, manifest.Options{
		SkipSucceeded: a.config.SkipSucceeded,
		Header:        a.header(stages),
	})
	if err != nil {
		return err
	}

	dir, err := manifest.AllocateInvocationDir(filepath.Join(a.root, a.settings.ManifestsDir))
	if err != nil {
		return err
	}
	path, err := m.WriteFile(dir)
	if err != nil {
		return err
	}
	logger.Info("Manifest written.", "path", path, "jobs", len(m.Blocks))

	if a.config.DryRun {
		return nil
	}
	if len(m.Blocks) == 0 {
		logger.Info("Nothing to execute: every pair already succeeded.")
		return nil
	}

	name := m.Blocks[0].Backend
	exec, ok := backend.For(name)
	if !ok {
		logger.Info("Execution delegated to external backend tooling.", "backend", name, "manifest", path)
		return nil
	}
	return exec.Execute(ctx, backend.Workspace{Root: a.root, Config: a.chain}, m)
}

// resolve iterates occurrence building and dependency validation until the
// invocation is closed. Without auto-include one unsatisfied pass is fatal;
// with it, dependency tasks entirely absent from the invocation are pulled
// in and the pipeline re-resolves until a fixed point. A pass that adds no
// new spec while gaps remain cannot satisfy them (for example because the
// missing task is disabled) and fails with the aggregated report.
func (a *App) resolve(ctx context.Context) (*occurrence.SchedulingContext, *depcheck.Report, error) {
	logger := ctxlog.FromContext(ctx)
	specs := append([]occurrence.Spec(nil), a.specs...)
	included := make(map[string]bool)

	for iteration := 0; ; iteration++ {
		sc := a.newSchedulingContext()
		if err := sc.AddSpecs(ctx, specs); err != nil {
			return nil, nil, err
		}
		rep, err := depcheck.Validate(ctx, sc)
		if err != nil {
			return nil, nil, err
		}
		if rep.Satisfied() {
			return sc, rep, nil
		}
		if !a.config.AutoInclude {
			return nil, nil, rep.MissingError()
		}

		var added []occurrence.Spec
		for _, spec := range rep.AutoIncludeSpecs() {
			key := spec.Raw + "\x1f" + spec.Overrides.Canonical()
			if included[key] {
				continue
			}
			included[key] = true
			added = append(added, spec)
		}
		if len(added) == 0 {
			return nil, nil, fmt.Errorf("cannot satisfy dependencies by auto-include: %w", rep.MissingError())
		}
		for _, spec := range added {
			logger.Info("Auto-including missing dependency.", "spec", spec.Raw, "iteration", iteration)
		}
		specs = append(specs, added...)
	}
}

func (a *App) newSchedulingContext() *occurrence.SchedulingContext {
	sc := occurrence.NewSchedulingContext(a.paths, a.chain)
	sc.DefaultBackend = a.settings.DefaultBackend
	return sc
}

// header assembles the manifest's global flags. The set is fixed and the
// values are pure functions of the invocation, keeping manifests
// byte-identical across reruns on unchanged state.
func (a *App) header(stages stage.Stages) []configchain.KV {
	return []configchain.KV{
		{Key: "stages", Value: strconv.Itoa(stages.Max() + 1)},
		{Key: "skip_succeeded", Value: boolFlag(a.config.SkipSucceeded)},
		{Key: "auto_include", Value: boolFlag(a.config.AutoInclude)},
	}
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
