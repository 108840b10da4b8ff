// Package app is the composition root: it wires the resolvers, the
// scheduling pipeline and the executor backends together for one invocation.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/vk/taskgrid/internal/configchain"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/occurrence"
	"github.com/vk/taskgrid/internal/settings"
	"github.com/vk/taskgrid/internal/status"
	"github.com/vk/taskgrid/internal/taskpath"
)

// App encapsulates one invocation's dependencies and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	settings settings.Settings

	root   string
	paths  *taskpath.Resolver
	chain  configchain.Resolver
	specs  []occurrence.Spec
}

// New constructs an App with its own isolated logger and resolvers. The
// config resolver is injectable so tests can substitute a deterministic
// in-memory implementation; passing nil selects the filesystem chain.
func New(outW io.Writer, config *Config, chain configchain.Resolver) (*App, error) {
	logger := config.newLogger(outW)

	root, err := filepath.Abs(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	s, err := settings.Load(root)
	if err != nil {
		return nil, err
	}
	tasksRoot := filepath.Join(root, s.TasksDir)
	if chain == nil {
		chain = configchain.NewChain(tasksRoot)
	}

	a := &App{
		outW:     outW,
		logger:   logger,
		config:   config,
		settings: s,
		root:     root,
		paths:    &taskpath.Resolver{Root: root, TasksRoot: tasksRoot},
		chain:    chain,
	}
	if err := a.parseArgs(); err != nil {
		return nil, err
	}
	return a, nil
}

// overrideRe recognizes a positional KEY=VALUE override token.
var overrideRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// parseArgs splits positional arguments into task specs and override
// assignments. An assignment extends the context of every spec that follows
// it; later assignments to the same key win.
func (a *App) parseArgs() error {
	ovr := configchain.Context{}
	if a.config.Backend != "" {
		// The backend flag rides the override mechanism: BACKEND shadows
		// every task's resolved backend.
		ovr = ovr.With(configchain.KV{Key: "BACKEND", Value: a.config.Backend})
	}
	for _, arg := range a.config.Args {
		if overrideRe.MatchString(arg) {
			kv, err := configchain.ParseAssignment(arg)
			if err != nil {
				return err
			}
			ovr = ovr.With(kv)
			continue
		}
		a.specs = append(a.specs, occurrence.Spec{Raw: arg, Overrides: ovr})
	}
	if len(a.specs) == 0 && !a.config.Status {
		return fmt.Errorf("no task specs among arguments")
	}
	return nil
}

// Run dispatches the invocation.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	switch {
	case a.config.Status:
		return status.Report(ctx, a.root, filepath.Join(a.root, a.settings.ManifestsDir), a.outW)
	case a.config.Clean:
		return a.clean(ctx)
	default:
		return a.schedule(ctx)
	}
}
