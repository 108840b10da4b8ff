package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/vk/taskgrid/internal/configchain"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/manifest"
)

// localBackend runs job blocks sequentially in the invoking process.
type localBackend struct{}

func (b *localBackend) Name() string { return manifest.LocalBackend }

// Execute runs the manifest's blocks in emission order, which is ascending
// stage order. Before each block it re-verifies that every task line of the
// block's declared dependencies still carries a success marker: this is the
// between-stage barrier defending against a dependency being invalidated
// between manifest creation and stage start. A failed pair aborts the
// remaining blocks; the manifest itself is never altered.
func (b *localBackend) Execute(ctx context.Context, ws Workspace, m *manifest.Manifest) error {
	logger := ctxlog.FromContext(ctx)
	blockByID := make(map[int]*manifest.JobBlock, len(m.Blocks))
	for i := range m.Blocks {
		blockByID[m.Blocks[i].ID] = &m.Blocks[i]
	}

	for i := range m.Blocks {
		block := &m.Blocks[i]
		if err := b.verifyDeps(ws, blockByID, block); err != nil {
			return err
		}
		logger.Info("Running job block.", "job", block.ID, "name", block.JobName, "tasks", len(block.Lines))
		for _, line := range block.Lines {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.runLine(ctx, ws, block, line); err != nil {
				return fmt.Errorf("job %d, %s run %s: %w", block.ID, line.TaskRel, line.Run, err)
			}
		}
	}
	return nil
}

// verifyDeps checks the success markers of every dependency block's lines.
func (b *localBackend) verifyDeps(ws Workspace, blocks map[int]*manifest.JobBlock, block *manifest.JobBlock) error {
	for _, depID := range block.Depends {
		dep, ok := blocks[depID]
		if !ok {
			return fmt.Errorf("job %d depends on unknown job %d", block.ID, depID)
		}
		for _, line := range dep.Lines {
			taskDir := filepath.Join(ws.Root, filepath.FromSlash(line.TaskRel))
			if !fsutil.HasSucceeded(taskDir, line.Run) {
				return fmt.Errorf("job %d cannot start: dependency %s run %s lost its success marker", block.ID, line.TaskRel, line.Run)
			}
		}
	}
	return nil
}

// runInfo is the per-run metadata bundle written before execution starts.
type runInfo struct {
	Token     string            `yaml:"token"`
	Task      string            `yaml:"task"`
	Run       string            `yaml:"run"`
	Job       int               `yaml:"job"`
	JobName   string            `yaml:"job_name"`
	Backend   string            `yaml:"backend"`
	Overrides map[string]string `yaml:"overrides,omitempty"`
}

func (b *localBackend) runLine(ctx context.Context, ws Workspace, block *manifest.JobBlock, line manifest.TaskLine) error {
	logger := ctxlog.FromContext(ctx).With("task", line.TaskRel, "run", line.Run)
	taskDir := filepath.Join(ws.Root, filepath.FromSlash(line.TaskRel))
	ovr := configchain.NewContext(line.Overrides...)

	command, err := ws.Config.Command(ctx, taskDir, ovr)
	if err != nil {
		return err
	}
	if command == "" {
		return fmt.Errorf("task resolves no command")
	}

	runDir := filepath.Join(taskDir, line.Run)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	if err := touch(filepath.Join(runDir, fsutil.StartedMarker)); err != nil {
		return err
	}
	// A re-run invalidates any previous success of the same folder.
	os.Remove(filepath.Join(runDir, fsutil.SuccessMarker))

	info := runInfo{
		Token:   uuid.NewString(),
		Task:    line.TaskRel,
		Run:     line.Run,
		Job:     block.ID,
		JobName: block.JobName,
		Backend: block.Backend,
	}
	if len(line.Overrides) > 0 {
		info.Overrides = make(map[string]string, len(line.Overrides))
		for _, kv := range line.Overrides {
			info.Overrides[kv.Key] = kv.Value
		}
	}
	if err := writeRunInfo(filepath.Join(runDir, fsutil.RunInfoFile), info); err != nil {
		return err
	}

	logger.Debug("Executing command.", "command", command)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = runDir
	cmd.Env = append(os.Environ(),
		"TASKGRID_TASK="+line.TaskRel,
		"TASKGRID_RUN="+line.Run,
		"TASKGRID_RUN_TOKEN="+info.Token,
	)
	for _, kv := range line.Overrides {
		cmd.Env = append(cmd.Env, kv.Key+"="+kv.Value)
	}
	logFile, err := os.Create(filepath.Join(runDir, "run.log"))
	if err != nil {
		return err
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	runErr := cmd.Run()
	logFile.Close()
	if runErr != nil {
		return fmt.Errorf("command failed: %w", runErr)
	}

	// The zero-byte success marker is the sole durable completion signal.
	if err := touch(filepath.Join(runDir, fsutil.SuccessMarker)); err != nil {
		return err
	}
	logger.Info("Run succeeded.")
	return nil
}

func writeRunInfo(path string, info runInfo) error {
	data, err := yaml.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
