// Package testutil provides the in-memory config resolver and workspace
// harness shared by the scheduling tests.
package testutil

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/vk/taskgrid/internal/configchain"
)

// MockResolver is a deterministic, filesystem-free configchain.Resolver.
// Values are keyed by absolute task directory. It honors the same
// override-context keys as the real chain (RUN_SPEC, BACKEND, JOB_NAME,
// DEPENDS, DISABLED, COMMAND), so override-sensitive behavior is testable
// without subprocesses or HCL files.
type MockResolver struct {
	RunSpecs      map[string]string
	Backends      map[string]string
	JobNames      map[string]string
	Deps          map[string][]string
	DisabledTasks map[string]bool
	Commands      map[string]string
}

// NewMockResolver returns an empty resolver ready for map assignment.
func NewMockResolver() *MockResolver {
	return &MockResolver{
		RunSpecs:      make(map[string]string),
		Backends:      make(map[string]string),
		JobNames:      make(map[string]string),
		Deps:          make(map[string][]string),
		DisabledTasks: make(map[string]bool),
		Commands:      make(map[string]string),
	}
}

func (m *MockResolver) RunSpec(_ context.Context, taskDir string, ovr configchain.Context) (string, error) {
	if v, ok := ovr.Lookup("RUN_SPEC"); ok {
		return v, nil
	}
	return m.RunSpecs[taskDir], nil
}

func (m *MockResolver) Backend(_ context.Context, taskDir string, ovr configchain.Context) (string, error) {
	if v, ok := ovr.Lookup("BACKEND"); ok {
		return v, nil
	}
	return m.Backends[taskDir], nil
}

func (m *MockResolver) JobName(_ context.Context, taskDir string, ovr configchain.Context) (string, error) {
	if v, ok := ovr.Lookup("JOB_NAME"); ok {
		return v, nil
	}
	if v, ok := m.JobNames[taskDir]; ok {
		return v, nil
	}
	return filepath.Base(taskDir), nil
}

func (m *MockResolver) DependsOn(_ context.Context, taskDir string, ovr configchain.Context) ([]string, error) {
	if v, ok := ovr.Lookup("DEPENDS"); ok {
		var deps []string
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				deps = append(deps, d)
			}
		}
		return deps, nil
	}
	return m.Deps[taskDir], nil
}

func (m *MockResolver) Disabled(_ context.Context, taskDir string, ovr configchain.Context) (bool, error) {
	if v, ok := ovr.Lookup("DISABLED"); ok {
		return configchain.Truthy(v), nil
	}
	return m.DisabledTasks[taskDir], nil
}

func (m *MockResolver) Command(_ context.Context, taskDir string, ovr configchain.Context) (string, error) {
	if v, ok := ovr.Lookup("COMMAND"); ok {
		return v, nil
	}
	return m.Commands[taskDir], nil
}
