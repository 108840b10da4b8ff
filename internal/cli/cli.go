// Package cli parses command-line arguments into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/taskgrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("taskgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
taskgrid - dependency-staged task execution for reproducible workflows.

Usage:
  taskgrid [options] TASK_SPEC [KEY=VALUE ...] [TASK_SPEC ...]

Arguments:
  TASK_SPEC
    A task directory, parent directory or glob pattern under the tasks
    root, optionally suffixed with ":run_spec" (e.g. tasks/train:run:1:8).
  KEY=VALUE
    Override assignment applying to every task spec that follows it.

Options:
`)
		flagSet.PrintDefaults()
	}

	dirFlag := flagSet.String("C", ".", "Workspace root directory.")
	autoIncludeFlag := flagSet.Bool("auto-include", false, "Pull missing dependency tasks into the invocation instead of failing.")
	skipSucceededFlag := flagSet.Bool("skip-succeeded", false, "Drop pairs whose run already carries a success marker.")
	cleanFlag := flagSet.Bool("clean", false, "Remove matching run folders instead of scheduling.")
	statusFlag := flagSet.Bool("status", false, "Report the newest manifest against disk state.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Stop after writing the manifest.")
	backendFlag := flagSet.String("backend", "", "Override the execution backend for every pair.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() == 0 && !*statusFlag {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		Dir:           *dirFlag,
		Args:          flagSet.Args(),
		AutoInclude:   *autoIncludeFlag,
		SkipSucceeded: *skipSucceededFlag,
		Clean:         *cleanFlag,
		Status:        *statusFlag,
		DryRun:        *dryRunFlag,
		Backend:       *backendFlag,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return config, false, nil
}
