package configchain

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
)

// chainSchema lists the attributes a chain file may set. Files are evaluated
// root-first; a later file's attribute shadows an earlier one, which is how
// a task inherits defaults from its ancestor directories.
var chainSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "run_spec"},
		{Name: "backend"},
		{Name: "job_name"},
		{Name: "depends"},
		{Name: "disabled"},
		{Name: "command"},
	},
}

// overrideKeys maps chain attributes to the override-context keys that
// shadow them. An override wins over every chain file, mirroring how
// environment assignments override sourced configuration.
var overrideKeys = map[string]string{
	"run_spec": "RUN_SPEC",
	"backend":  "BACKEND",
	"job_name": "JOB_NAME",
	"depends":  "DEPENDS",
	"disabled": "DISABLED",
	"command":  "COMMAND",
}

// taskConfig is the fully resolved configuration of one (task, context).
type taskConfig struct {
	runSpec  string
	backend  string
	jobName  string
	depends  []string
	disabled bool
	command  string
}

// Chain is the filesystem Resolver. It evaluates defaults.hcl files from the
// tasks root down to the task directory, then the task's task.hcl, with the
// override context exposed to expressions as var.<KEY> and applied on top of
// the result.
type Chain struct {
	TasksRoot string

	parser *hclparse.Parser
	cache  map[cacheKey]*taskConfig
}

type cacheKey struct {
	taskDir string
	ctx     string
}

// NewChain creates a Chain resolver rooted at the given tasks tree.
func NewChain(tasksRoot string) *Chain {
	return &Chain{
		TasksRoot: tasksRoot,
		parser:    hclparse.NewParser(),
		cache:     make(map[cacheKey]*taskConfig),
	}
}

func (c *Chain) RunSpec(ctx context.Context, taskDir string, ovr Context) (string, error) {
	cfg, err := c.resolve(ctx, taskDir, ovr)
	if err != nil {
		return "", err
	}
	return cfg.runSpec, nil
}

func (c *Chain) Backend(ctx context.Context, taskDir string, ovr Context) (string, error) {
	cfg, err := c.resolve(ctx, taskDir, ovr)
	if err != nil {
		return "", err
	}
	return cfg.backend, nil
}

func (c *Chain) JobName(ctx context.Context, taskDir string, ovr Context) (string, error) {
	cfg, err := c.resolve(ctx, taskDir, ovr)
	if err != nil {
		return "", err
	}
	if cfg.jobName != "" {
		return cfg.jobName, nil
	}
	// A task without an explicit job name groups by its own directory name.
	return filepath.Base(taskDir), nil
}

func (c *Chain) DependsOn(ctx context.Context, taskDir string, ovr Context) ([]string, error) {
	cfg, err := c.resolve(ctx, taskDir, ovr)
	if err != nil {
		return nil, err
	}
	return cfg.depends, nil
}

func (c *Chain) Disabled(ctx context.Context, taskDir string, ovr Context) (bool, error) {
	cfg, err := c.resolve(ctx, taskDir, ovr)
	if err != nil {
		return false, err
	}
	return cfg.disabled, nil
}

func (c *Chain) Command(ctx context.Context, taskDir string, ovr Context) (string, error) {
	cfg, err := c.resolve(ctx, taskDir, ovr)
	if err != nil {
		return "", err
	}
	return cfg.command, nil
}

// resolve evaluates the configuration chain for a task under an override
// context, caching per (task, normalized context).
func (c *Chain) resolve(ctx context.Context, taskDir string, ovr Context) (*taskConfig, error) {
	key := cacheKey{taskDir: taskDir, ctx: ovr.Canonical()}
	if cfg, ok := c.cache[key]; ok {
		return cfg, nil
	}
	logger := ctxlog.FromContext(ctx)

	files, err := c.chainFiles(taskDir)
	if err != nil {
		return nil, err
	}
	logger.Debug("Evaluating configuration chain.", "task", taskDir, "files", len(files), "overrides", ovr.String())

	evalCtx := evalContext(ovr)
	cfg := &taskConfig{}
	for _, file := range files {
		if err := c.applyFile(file, evalCtx, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyOverrides(cfg, ovr); err != nil {
		return nil, err
	}

	c.cache[key] = cfg
	return cfg, nil
}

// chainFiles lists the files of a task's chain in evaluation order: every
// ancestor defaults.hcl from the tasks root down, then the task's own
// defaults.hcl (if present) and task.hcl (required).
func (c *Chain) chainFiles(taskDir string) ([]string, error) {
	rel, err := filepath.Rel(c.TasksRoot, taskDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("task %s lies outside the tasks root %s", taskDir, c.TasksRoot)
	}

	dirs := []string{c.TasksRoot}
	if rel != "." {
		current := c.TasksRoot
		for _, seg := range strings.Split(rel, string(filepath.Separator)) {
			current = filepath.Join(current, seg)
			dirs = append(dirs, current)
		}
	}

	var files []string
	for _, dir := range dirs {
		if defaults := filepath.Join(dir, fsutil.DefaultsFile); fsutil.IsFile(defaults) {
			files = append(files, defaults)
		}
	}
	entry := filepath.Join(taskDir, fsutil.TaskMarker)
	if !fsutil.IsFile(entry) {
		return nil, fmt.Errorf("%s has no %s entry point", taskDir, fsutil.TaskMarker)
	}
	files = append(files, entry)
	return files, nil
}

// applyFile evaluates one chain file's attributes into cfg, shadowing
// earlier values.
func (c *Chain) applyFile(path string, evalCtx *hcl.EvalContext, cfg *taskConfig) error {
	file, diags := c.parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse %s: %w", path, diags)
	}
	content, _, diags := file.Body.PartialContent(chainSchema)
	if diags.HasErrors() {
		return fmt.Errorf("invalid configuration in %s: %w", path, diags)
	}

	for name, attr := range content.Attributes {
		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return fmt.Errorf("evaluating %s in %s: %w", name, path, diags)
		}
		if err := assign(cfg, name, val); err != nil {
			return fmt.Errorf("%s in %s: %w", name, path, err)
		}
	}
	return nil
}

func assign(cfg *taskConfig, name string, val cty.Value) error {
	switch name {
	case "depends":
		deps, err := stringList(val)
		if err != nil {
			return err
		}
		cfg.depends = deps
		return nil
	case "disabled":
		s, err := stringValue(val)
		if err != nil {
			return err
		}
		cfg.disabled = Truthy(s)
		return nil
	}
	s, err := stringValue(val)
	if err != nil {
		return err
	}
	switch name {
	case "run_spec":
		cfg.runSpec = s
	case "backend":
		cfg.backend = s
	case "job_name":
		cfg.jobName = s
	case "command":
		cfg.command = s
	}
	return nil
}

// applyOverrides lets override-context keys shadow the chain's result.
func applyOverrides(cfg *taskConfig, ovr Context) error {
	for attr, key := range overrideKeys {
		v, ok := ovr.Lookup(key)
		if !ok {
			continue
		}
		switch attr {
		case "run_spec":
			cfg.runSpec = v
		case "backend":
			cfg.backend = v
		case "job_name":
			cfg.jobName = v
		case "command":
			cfg.command = v
		case "disabled":
			cfg.disabled = Truthy(v)
		case "depends":
			cfg.depends = nil
			for _, d := range strings.Split(v, ",") {
				if d = strings.TrimSpace(d); d != "" {
					cfg.depends = append(cfg.depends, d)
				}
			}
		}
	}
	return nil
}

// evalContext exposes the override assignments to HCL expressions as
// var.<KEY> string values, plus an override(key, default) function for
// chains that need a fallback when the key is not set. var.<KEY> on an
// absent key is an evaluation error; override is the defaulting form.
func evalContext(ovr Context) *hcl.EvalContext {
	vals := make(map[string]cty.Value)
	for _, kv := range ovr.Normalize().Values() {
		vals[kv.Key] = cty.StringVal(kv.Value)
	}
	vars := cty.EmptyObjectVal
	if len(vals) > 0 {
		vars = cty.ObjectVal(vals)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": vars},
		Functions: map[string]function.Function{
			"override": overrideFunc(ovr),
		},
	}
}

// overrideFunc builds the override(key, default) chain function: the
// effective value of the override-context key, or the default when the key
// is absent.
func overrideFunc(ovr Context) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "key", Type: cty.String},
			{Name: "default", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			if v, ok := ovr.Lookup(args[0].AsString()); ok {
				return cty.StringVal(v), nil
			}
			return args[1], nil
		},
	})
}

func stringValue(val cty.Value) (string, error) {
	converted, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("expected a string-convertible value: %w", err)
	}
	if converted.IsNull() {
		return "", nil
	}
	return converted.AsString(), nil
}

func stringList(val cty.Value) ([]string, error) {
	if val.IsNull() {
		return nil, nil
	}
	t := val.Type()
	if !t.IsListType() && !t.IsTupleType() && !t.IsSetType() {
		return nil, fmt.Errorf("expected a list of strings, got %s", t.FriendlyName())
	}
	var out []string
	for it := val.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		s, err := stringValue(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
