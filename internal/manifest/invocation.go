package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// invocationPrefix names the per-invocation directories under the manifests
// root.
const invocationPrefix = "invocation_"

// AllocateInvocationDir creates a fresh invocation directory under
// manifestsRoot, disambiguated by the smallest unused numeric suffix, and
// returns its path. Creation is exclusive, so concurrent invocations never
// share a directory.
func AllocateInvocationDir(manifestsRoot string) (string, error) {
	if err := os.MkdirAll(manifestsRoot, 0o755); err != nil {
		return "", fmt.Errorf("creating manifests root: %w", err)
	}
	for n := 1; ; n++ {
		dir := filepath.Join(manifestsRoot, invocationPrefix+strconv.Itoa(n))
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("creating invocation directory: %w", err)
		}
	}
}

// LatestInvocationDir returns the invocation directory with the highest
// numeric suffix, for the status helper.
func LatestInvocationDir(manifestsRoot string) (string, error) {
	entries, err := os.ReadDir(manifestsRoot)
	if err != nil {
		return "", fmt.Errorf("reading manifests root: %w", err)
	}
	var suffixes []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), invocationPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), invocationPrefix))
		if err != nil {
			continue
		}
		suffixes = append(suffixes, n)
	}
	if len(suffixes) == 0 {
		return "", fmt.Errorf("no invocation directories under %s", manifestsRoot)
	}
	sort.Ints(suffixes)
	latest := suffixes[len(suffixes)-1]
	return filepath.Join(manifestsRoot, invocationPrefix+strconv.Itoa(latest)), nil
}

// WriteFile encodes the manifest into dir as one atomic pass: the content is
// staged under a temporary name and renamed into place, so executors never
// observe a partial manifest.
func (m *Manifest) WriteFile(dir string) (string, error) {
	tmp, err := os.CreateTemp(dir, FileName+".tmp*")
	if err != nil {
		return "", err
	}
	if err := m.Encode(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	path := filepath.Join(dir, FileName)
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

// ReadFile parses the manifest inside an invocation directory.
func ReadFile(dir string) (*Manifest, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
