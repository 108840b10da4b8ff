package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFullFlagSet(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}
	args := []string{
		"-C", "/work",
		"-auto-include",
		"-skip-succeeded",
		"-dry-run",
		"-backend", "slurm",
		"-log-format", "JSON",
		"-log-level", "DEBUG",
		"tasks/a:r1", "X=1", "tasks/b",
	}

	config, shouldExit, err := Parse(args, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, "/work", config.Dir)
	assert.True(t, config.AutoInclude)
	assert.True(t, config.SkipSucceeded)
	assert.True(t, config.DryRun)
	assert.False(t, config.Clean)
	assert.Equal(t, "slurm", config.Backend)
	assert.Equal(t, "json", config.LogFormat, "format is lowercased")
	assert.Equal(t, "debug", config.LogLevel, "level is lowercased")
	assert.Equal(t, []string{"tasks/a:r1", "X=1", "tasks/b"}, config.Args)
}

func TestParseHelpFlag(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	config, shouldExit, err := Parse([]string{"-h"}, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, config)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseNoArgsPrintsUsage(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	config, shouldExit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, config)
	assert.Contains(t, out.String(), "TASK_SPEC")
}

func TestParseStatusNeedsNoArgs(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	config, shouldExit, err := Parse([]string{"-status"}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.True(t, config.Status)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{
			name:    "unknown flag",
			args:    []string{"-no-such-flag", "tasks/a"},
			wantMsg: "flag provided but not defined",
		},
		{
			name:    "invalid log format",
			args:    []string{"-log-format", "xml", "tasks/a"},
			wantMsg: "invalid log-format",
		},
		{
			name:    "invalid log level",
			args:    []string{"-log-level", "loud", "tasks/a"},
			wantMsg: "invalid log-level",
		},
		{
			name:    "clean and status together",
			args:    []string{"-clean", "-status", "tasks/a"},
			wantMsg: "mutually exclusive",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := &bytes.Buffer{}
			_, _, err := Parse(tt.args, out)
			require.Error(t, err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tt.wantMsg)
		})
	}
}
