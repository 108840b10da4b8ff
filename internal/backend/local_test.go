package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vk/taskgrid/internal/configchain"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/manifest"
	"github.com/vk/taskgrid/internal/testutil"
)

func TestForSelectsLocalOnly(t *testing.T) {
	for _, name := range []string{"local", "direct"} {
		b, ok := For(name)
		require.True(t, ok, name)
		assert.Equal(t, "local", b.Name())
	}
	_, ok := For("slurm")
	assert.False(t, ok)
}

func singleLineManifest(taskRel, run string) *manifest.Manifest {
	return &manifest.Manifest{Blocks: []manifest.JobBlock{{
		ID:      0,
		JobName: filepath.Base(taskRel),
		Backend: manifest.LocalBackend,
		Lines:   []manifest.TaskLine{{Index: 0, Run: run, TaskRel: taskRel}},
	}}}
}

func TestExecuteRunsCommandInRunFolder(t *testing.T) {
	w := testutil.NewWorkspace(t)
	a := w.AddTask("a", "")
	mock := testutil.NewMockResolver()
	mock.Commands[a] = `printf '%s' "$TASKGRID_RUN" > run_name.txt`

	b, _ := For(manifest.LocalBackend)
	ws := Workspace{Root: w.Root, Config: mock}
	require.NoError(t, b.Execute(context.Background(), ws, singleLineManifest("tasks/a", "r1")))

	runDir := filepath.Join(a, "r1")
	assert.True(t, fsutil.HasSucceeded(a, "r1"))
	data, err := os.ReadFile(filepath.Join(runDir, "run_name.txt"))
	require.NoError(t, err)
	assert.Equal(t, "r1", string(data))
	assert.FileExists(t, filepath.Join(runDir, "run.log"))

	var info struct {
		Token string `yaml:"token"`
		Task  string `yaml:"task"`
		Run   string `yaml:"run"`
	}
	raw, err := os.ReadFile(filepath.Join(runDir, fsutil.RunInfoFile))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(raw, &info))
	assert.NotEmpty(t, info.Token)
	assert.Equal(t, "tasks/a", info.Task)
	assert.Equal(t, "r1", info.Run)
}

func TestExecuteOverridesReachEnvironment(t *testing.T) {
	w := testutil.NewWorkspace(t)
	a := w.AddTask("a", "")
	mock := testutil.NewMockResolver()
	mock.Commands[a] = `printf '%s' "$LR" > lr.txt`

	m := singleLineManifest("tasks/a", "r1")
	m.Blocks[0].Lines[0].Overrides = []configchain.KV{{Key: "LR", Value: "0.1"}}

	b, _ := For(manifest.LocalBackend)
	require.NoError(t, b.Execute(context.Background(), Workspace{Root: w.Root, Config: mock}, m))

	data, err := os.ReadFile(filepath.Join(a, "r1", "lr.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0.1", string(data))
}

func TestExecuteFailingCommandStopsAndLeavesNoMarker(t *testing.T) {
	w := testutil.NewWorkspace(t)
	a := w.AddTask("a", "")
	mock := testutil.NewMockResolver()
	mock.Commands[a] = "exit 3"

	b, _ := For(manifest.LocalBackend)
	err := b.Execute(context.Background(), Workspace{Root: w.Root, Config: mock}, singleLineManifest("tasks/a", "r1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command failed")
	assert.False(t, fsutil.HasSucceeded(a, "r1"))
	// The started marker stays behind as evidence of the attempt.
	assert.FileExists(t, filepath.Join(a, "r1", fsutil.StartedMarker))
}

func TestExecuteRerunInvalidatesOldSuccess(t *testing.T) {
	w := testutil.NewWorkspace(t)
	a := w.AddTask("a", "")
	w.AddRun("a", "r1", true)
	mock := testutil.NewMockResolver()
	mock.Commands[a] = "exit 1"

	b, _ := For(manifest.LocalBackend)
	err := b.Execute(context.Background(), Workspace{Root: w.Root, Config: mock}, singleLineManifest("tasks/a", "r1"))
	require.Error(t, err)
	// The stale success marker must be gone even though the re-run failed.
	assert.False(t, fsutil.HasSucceeded(a, "r1"))
}

func TestVerifyDepsBarrier(t *testing.T) {
	w := testutil.NewWorkspace(t)
	w.AddTask("a", "")
	ws := Workspace{Root: w.Root, Config: testutil.NewMockResolver()}

	dep := manifest.JobBlock{ID: 0, Lines: []manifest.TaskLine{{Index: 0, Run: "r1", TaskRel: "tasks/a"}}}
	block := manifest.JobBlock{ID: 1, Depends: []int{0}}
	blocks := map[int]*manifest.JobBlock{0: &dep, 1: &block}
	b := &localBackend{}

	err := b.verifyDeps(ws, blocks, &block)
	require.Error(t, err, "dependency never succeeded")
	assert.Contains(t, err.Error(), "lost its success marker")

	w.AddRun("a", "r1", true)
	require.NoError(t, b.verifyDeps(ws, blocks, &block))

	orphan := manifest.JobBlock{ID: 2, Depends: []int{7}}
	err = b.verifyDeps(ws, blocks, &orphan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depends on unknown job")
}

func TestExecuteMissingCommandFails(t *testing.T) {
	w := testutil.NewWorkspace(t)
	w.AddTask("a", "")
	mock := testutil.NewMockResolver()

	b, _ := For(manifest.LocalBackend)
	err := b.Execute(context.Background(), Workspace{Root: w.Root, Config: mock}, singleLineManifest("tasks/a", "r1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolves no command")
}
