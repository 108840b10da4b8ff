// Package settings loads the workspace-level configuration file. The file is
// optional; every field has a default so a bare workspace with just a tasks
// tree works out of the box.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the workspace settings file, looked up at the workspace root.
const FileName = "taskgrid.yaml"

// Settings are the workspace-level defaults.
type Settings struct {
	// TasksDir is the tasks tree, relative to the workspace root.
	TasksDir string `yaml:"tasks_dir"`
	// ManifestsDir receives per-invocation manifest directories, relative
	// to the workspace root.
	ManifestsDir string `yaml:"manifests_dir"`
	// DefaultBackend is used by tasks whose chain resolves no backend.
	DefaultBackend string `yaml:"default_backend"`
}

// Default returns the settings used when no file is present.
func Default() Settings {
	return Settings{
		TasksDir:       "tasks",
		ManifestsDir:   "manifests",
		DefaultBackend: "local",
	}
}

// Load reads the settings file from the workspace root, falling back to
// defaults for a missing file or any unset field.
func Load(root string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("reading %s: %w", FileName, err)
	}
	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return s, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if loaded.TasksDir != "" {
		s.TasksDir = loaded.TasksDir
	}
	if loaded.ManifestsDir != "" {
		s.ManifestsDir = loaded.ManifestsDir
	}
	if loaded.DefaultBackend != "" {
		s.DefaultBackend = loaded.DefaultBackend
	}
	return s, nil
}
