package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/packd/internal/logfields"
)

// Prefix names every scratch directory so Sweep never touches anything else.
const Prefix = "packd-"

// Manager creates and sweeps scratch directories under a base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a workspace manager rooted at baseDir.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "packd")
	}
	return &Manager{baseDir: baseDir}
}

// BaseDir returns the directory scratch workspaces are created in.
func (m *Manager) BaseDir() string { return m.baseDir }

// Workspace is one scratch directory.
type Workspace struct {
	path string
}

// Create creates the scratch directory for hash. A leftover directory with
// the same name is removed first.
func (m *Manager) Create(hash string) (*Workspace, error) {
	if hash == "" || strings.ContainsAny(hash, `/\.`) {
		return nil, fmt.Errorf("invalid workspace name %q", hash)
	}
	path := filepath.Join(m.baseDir, Prefix+hash)
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to clear stale workspace: %w", err)
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}
	slog.Debug("Created workspace", logfields.Path(path))
	return &Workspace{path: path}, nil
}

// GetPath returns the path to the workspace directory.
func (w *Workspace) GetPath() string {
	return w.path
}

// CreateSubdir creates a subdirectory within the workspace.
func (w *Workspace) CreateSubdir(name string) (string, error) {
	if w.path == "" {
		return "", fmt.Errorf("workspace not created")
	}
	subdir := filepath.Join(w.path, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}
	return subdir, nil
}

// Cleanup removes the workspace directory. It is safe to call more than once.
func (w *Workspace) Cleanup() error {
	if w.path == "" {
		return nil
	}
	if err := os.RemoveAll(w.path); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Debug("Cleaned up workspace", logfields.Path(w.path))
	w.path = ""
	return nil
}

// Sweep removes scratch directories last modified more than maxAge ago and
// returns how many were removed.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read workspace base: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), Prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.baseDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Failed to sweep workspace", logfields.Path(path), logfields.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
