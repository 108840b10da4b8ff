// Package backend hosts the executor side of the manifest boundary. The
// scheduling core emits a manifest; a backend consumes it. Only the local
// backend executes in-process; cluster backends are external consumers that
// pick the manifest up from the invocation directory.
package backend

import (
	"context"

	"github.com/vk/taskgrid/internal/configchain"
	"github.com/vk/taskgrid/internal/manifest"
)

// Workspace carries what an executor needs beyond the manifest itself.
type Workspace struct {
	// Root is the absolute workspace root; manifest task paths are
	// relative to it.
	Root string
	// Config resolves each task's command under its override context.
	Config configchain.Resolver
}

// Backend executes the job blocks of a manifest.
type Backend interface {
	Name() string
	Execute(ctx context.Context, ws Workspace, m *manifest.Manifest) error
}

// For returns the in-process backend for a backend identity, or false when
// execution is delegated to external tooling.
func For(name string) (Backend, bool) {
	if manifest.IsLocalBackend(name) {
		return &localBackend{}, true
	}
	return nil, false
}
