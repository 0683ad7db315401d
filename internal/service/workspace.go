package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// workspace is the private scratch directory of one pipeline run. Every
// artifact a stage produces is tracked so Cleanup can prove it is gone.
type workspace struct {
	mu        sync.Mutex
	dir       string
	artifacts []string
	cleaned   bool
}

func newWorkspace(root, jobID string) (*workspace, error) {
	if root == "" {
		return nil, errors.New("work directory is not configured")
	}
	dir := filepath.Join(root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &workspace{dir: dir}, nil
}

func (w *workspace) Dir() string {
	return w.dir
}

// Track records an artifact path. Paths outside the workspace are tracked
// too so adapters that write elsewhere cannot leak files.
func (w *workspace) Track(path string) {
	if path == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.artifacts = append(w.artifacts, path)
}

// Cleanup deletes every tracked artifact and the directory itself. It is
// safe to call more than once.
func (w *workspace) Cleanup() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cleaned {
		return nil
	}

	var errs []error
	for _, p := range w.artifacts {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(w.dir); err != nil {
		errs = append(errs, err)
	}
	w.cleaned = len(errs) == 0
	return errors.Join(errs...)
}

// removeStaleWorkspaces deletes job directories under root that no running
// job owns, which is what a crashed process leaves behind.
func removeStaleWorkspaces(root string, owned func(jobID string) bool) (int, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read work dir: %w", err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if owned(e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
