package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_CreateAndCleanup(t *testing.T) {
	mgr := NewManager(t.TempDir())

	ws, err := mgr.Create("abc123")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	wsPath := ws.GetPath()
	if filepath.Base(wsPath) != "packd-abc123" {
		t.Errorf("expected directory named by hash, got: %s", wsPath)
	}
	if _, err := os.Stat(wsPath); err != nil {
		t.Fatalf("workspace directory does not exist: %v", err)
	}

	sub, err := ws.CreateSubdir("package")
	if err != nil {
		t.Fatalf("CreateSubdir() failed: %v", err)
	}
	if !strings.HasPrefix(sub, wsPath) {
		t.Errorf("subdir %s outside workspace %s", sub, wsPath)
	}

	if err := ws.Cleanup(); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}
	if _, err := os.Stat(wsPath); !os.IsNotExist(err) {
		t.Errorf("workspace directory still exists after cleanup: %s", wsPath)
	}
	if err := ws.Cleanup(); err != nil {
		t.Errorf("second Cleanup() should be a no-op, got %v", err)
	}
	if _, err := ws.CreateSubdir("x"); err == nil {
		t.Error("CreateSubdir after Cleanup should fail")
	}
}

func TestManager_CreateReplacesLeftovers(t *testing.T) {
	base := t.TempDir()
	stale := filepath.Join(base, "packd-abc123")
	if err := os.MkdirAll(filepath.Join(stale, "node_modules"), 0o750); err != nil {
		t.Fatal(err)
	}

	ws, err := NewManager(base).Create("abc123")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.GetPath(), "node_modules")); !os.IsNotExist(err) {
		t.Error("stale contents should be removed")
	}
}

func TestManager_CreateRejectsPaths(t *testing.T) {
	mgr := NewManager(t.TempDir())
	for _, name := range []string{"", "../x", "a/b", "."} {
		if _, err := mgr.Create(name); err == nil {
			t.Errorf("Create(%q) should fail", name)
		}
	}
}

func TestManager_Sweep(t *testing.T) {
	base := t.TempDir()
	mgr := NewManager(base)

	old := filepath.Join(base, "packd-old")
	fresh := filepath.Join(base, "packd-fresh")
	other := filepath.Join(base, "unrelated")
	for _, dir := range []string{old, fresh, other} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-time.Hour)
	for _, dir := range []string{old, other} {
		if err := os.Chtimes(dir, past, past); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := mgr.Sweep(10 * time.Minute)
	if err != nil {
		t.Fatalf("Sweep() failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale workspace not removed")
	}
	for _, dir := range []string{fresh, other} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s should survive sweep", dir)
		}
	}
}

func TestManager_SweepMissingBase(t *testing.T) {
	removed, err := NewManager(filepath.Join(t.TempDir(), "missing")).Sweep(time.Minute)
	if err != nil || removed != 0 {
		t.Errorf("Sweep() on missing base = %d, %v", removed, err)
	}
}
