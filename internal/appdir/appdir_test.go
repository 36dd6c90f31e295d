package appdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir_EnvOverride(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)

	customDir := t.TempDir()
	t.Setenv(DirEnv, customDir)

	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() failed: %v", err)
	}
	if dir != customDir {
		t.Errorf("Dir() = %q, want %q", dir, customDir)
	}
}

func TestDir_DefaultPath(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)
	t.Setenv(DirEnv, "")

	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() failed: %v", err)
	}
	if !strings.Contains(strings.ToLower(dir), "tether") {
		t.Errorf("Dir() = %q, expected path to contain 'tether'", dir)
	}
}

func TestEnsureDir(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)

	base := filepath.Join(t.TempDir(), "nested")
	t.Setenv(DirEnv, base)

	if err := EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() failed: %v", err)
	}
	info, err := os.Stat(filepath.Join(base, LogsDirName))
	if err != nil {
		t.Fatalf("logs directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("logs path is not a directory")
	}
}

func TestPaths(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)

	base := t.TempDir()
	t.Setenv(DirEnv, base)
	t.Setenv(ConfigEnv, "")

	cfg, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() failed: %v", err)
	}
	if want := filepath.Join(base, ConfigFileName); cfg != want {
		t.Errorf("ConfigPath() = %q, want %q", cfg, want)
	}

	logPath, err := LogPath()
	if err != nil {
		t.Fatalf("LogPath() failed: %v", err)
	}
	if want := filepath.Join(base, LogsDirName, LogFileName); logPath != want {
		t.Errorf("LogPath() = %q, want %q", logPath, want)
	}

	t.Setenv(ConfigEnv, "/etc/tether.yaml")
	cfg, err = ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() failed: %v", err)
	}
	if cfg != "/etc/tether.yaml" {
		t.Errorf("ConfigPath() with override = %q", cfg)
	}
}
