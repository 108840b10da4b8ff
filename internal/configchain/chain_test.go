package configchain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newChainWorkspace(t *testing.T) (tasksRoot string, chain *Chain) {
	t.Helper()
	tasksRoot = filepath.Join(t.TempDir(), "tasks")
	require.NoError(t, os.MkdirAll(tasksRoot, 0o755))
	return tasksRoot, NewChain(tasksRoot)
}

func TestChainInheritance(t *testing.T) {
	ctx := context.Background()
	tasksRoot, chain := newChainWorkspace(t)

	writeFile(t, filepath.Join(tasksRoot, "defaults.hcl"), `
run_spec = "run:1:2"
backend  = "slurm"
`)
	writeFile(t, filepath.Join(tasksRoot, "exp", "defaults.hcl"), `
backend = "local"
`)
	task := filepath.Join(tasksRoot, "exp", "matmul")
	writeFile(t, filepath.Join(task, "task.hcl"), `
command = "./matmul"
`)

	rs, err := chain.RunSpec(ctx, task, Context{})
	require.NoError(t, err)
	assert.Equal(t, "run:1:2", rs, "inherited from the tasks root")

	be, err := chain.Backend(ctx, task, Context{})
	require.NoError(t, err)
	assert.Equal(t, "local", be, "nearer defaults shadow farther ones")

	cmd, err := chain.Command(ctx, task, Context{})
	require.NoError(t, err)
	assert.Equal(t, "./matmul", cmd)
}

func TestChainTaskFileWins(t *testing.T) {
	ctx := context.Background()
	tasksRoot, chain := newChainWorkspace(t)
	writeFile(t, filepath.Join(tasksRoot, "defaults.hcl"), `run_spec = "run:1:8"`)
	task := filepath.Join(tasksRoot, "a")
	writeFile(t, filepath.Join(task, "task.hcl"), `run_spec = "local"`)

	rs, err := chain.RunSpec(ctx, task, Context{})
	require.NoError(t, err)
	assert.Equal(t, "local", rs)
}

func TestChainOverrideContext(t *testing.T) {
	ctx := context.Background()
	tasksRoot, chain := newChainWorkspace(t)
	task := filepath.Join(tasksRoot, "train")
	writeFile(t, filepath.Join(task, "task.hcl"), `
run_spec = "run:1:4"
command  = "./train --lr ${var.LR}"
depends  = ["tasks/prep"]
`)

	t.Run("var interpolation", func(t *testing.T) {
		cmd, err := chain.Command(ctx, task, NewContext(KV{Key: "LR", Value: "0.1"}))
		require.NoError(t, err)
		assert.Equal(t, "./train --lr 0.1", cmd)
	})

	t.Run("unset var is an error", func(t *testing.T) {
		_, err := chain.Command(ctx, task, Context{})
		require.Error(t, err)
	})

	t.Run("override keys shadow the chain", func(t *testing.T) {
		rs, err := chain.RunSpec(ctx, task, NewContext(KV{Key: "LR", Value: "0.1"}, KV{Key: "RUN_SPEC", Value: "run9"}))
		require.NoError(t, err)
		assert.Equal(t, "run9", rs)

		deps, err := chain.DependsOn(ctx, task, NewContext(KV{Key: "LR", Value: "0.1"}, KV{Key: "DEPENDS", Value: "tasks/other, tasks/more"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"tasks/other", "tasks/more"}, deps)
	})
}

func TestChainDisabled(t *testing.T) {
	ctx := context.Background()
	tasksRoot, chain := newChainWorkspace(t)
	task := filepath.Join(tasksRoot, "old")
	writeFile(t, filepath.Join(task, "task.hcl"), `disabled = "yes"`)

	disabled, err := chain.Disabled(ctx, task, Context{})
	require.NoError(t, err)
	assert.True(t, disabled)

	// Overriding DISABLED flips the flag back on demand.
	disabled, err = chain.Disabled(ctx, task, NewContext(KV{Key: "DISABLED", Value: "false"}))
	require.NoError(t, err)
	assert.False(t, disabled)
}

func TestChainJobNameDefaultsToDirName(t *testing.T) {
	ctx := context.Background()
	tasksRoot, chain := newChainWorkspace(t)
	task := filepath.Join(tasksRoot, "exp", "matmul")
	writeFile(t, filepath.Join(task, "task.hcl"), ``)

	name, err := chain.JobName(ctx, task, Context{})
	require.NoError(t, err)
	assert.Equal(t, "matmul", name)
}

func TestChainMissingEntryPoint(t *testing.T) {
	ctx := context.Background()
	tasksRoot, chain := newChainWorkspace(t)
	dir := filepath.Join(tasksRoot, "nothere")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	_, err := chain.RunSpec(ctx, dir, Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task.hcl")
}

func TestChainDependsList(t *testing.T) {
	ctx := context.Background()
	tasksRoot, chain := newChainWorkspace(t)
	task := filepath.Join(tasksRoot, "b")
	writeFile(t, filepath.Join(task, "task.hcl"), `depends = ["tasks/a", "tasks/c:run:1:2"]`)

	deps, err := chain.DependsOn(ctx, task, Context{})
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks/a", "tasks/c:run:1:2"}, deps)
}

func TestChainOverrideFunction(t *testing.T) {
	ctx := context.Background()
	tasksRoot, chain := newChainWorkspace(t)
	task := filepath.Join(tasksRoot, "a")
	writeFile(t, filepath.Join(task, "task.hcl"), `
job_name = override("NAME", "fallback")
disabled = override("DISABLED", "false")
`)

	name, err := chain.JobName(ctx, task, Context{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", name, "absent key yields the default")

	disabled, err := chain.Disabled(ctx, task, Context{})
	require.NoError(t, err)
	assert.False(t, disabled)

	name, err = chain.JobName(ctx, task, NewContext(KV{Key: "NAME", Value: "custom"}))
	require.NoError(t, err)
	assert.Equal(t, "custom", name, "present key yields its effective value")

	disabled, err = chain.Disabled(ctx, task, NewContext(KV{Key: "DISABLED", Value: "yes"}))
	require.NoError(t, err)
	assert.True(t, disabled)
}
