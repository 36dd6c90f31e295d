package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/inercia/tether/internal/approval"
)

func newTestWatcher(t *testing.T, path string) (*Watcher, chan *Config) {
	t.Helper()
	changes := make(chan *Config, 10)
	w, err := NewWatcher(path, func(cfg *Config) { changes <- cfg }, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.SetDebounceDelay(20 * time.Millisecond)
	w.Start()
	t.Cleanup(func() { _ = w.Close() })
	return w, changes
}

func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mode: interactive\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, changes := newTestWatcher(t, path)

	if err := os.WriteFile(path, []byte("mode: auto\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.Policy() != approval.PolicyAuto {
			t.Errorf("reloaded Policy() = %q, want auto", cfg.Policy())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_IgnoresInvalidAndOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("mode: interactive\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, changes := newTestWatcher(t, path)

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("mode: auto\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("mode: yolo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		t.Fatalf("unexpected reload: %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_CloseStopsNotifications(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mode: interactive\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	changes := make(chan *Config, 10)
	w, err := NewWatcher(path, func(cfg *Config) { changes <- cfg }, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.SetDebounceDelay(10 * time.Millisecond)
	w.Start()
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("mode: auto\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changes:
		t.Fatal("notification after Close")
	case <-time.After(100 * time.Millisecond):
	}
}
