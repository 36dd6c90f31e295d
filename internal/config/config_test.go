package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inercia/tether/internal/appdir"
	"github.com/inercia/tether/internal/approval"
)

func TestParse_ValidConfig(t *testing.T) {
	yaml := `
engine:
  type: process
  command: "my-engine --stdio"
  cwd: /tmp
  ready_on_start: true
mode: auto
followup_timeout: 5s
task_timeout: 2m
auto_approval:
  readFiles: true
  maxRequests: 20
rules:
  - name: tests
    when: 'subtype == "command" && text.startsWith("go test")'
    decision: approve
log:
  level: debug
  file: /tmp/tether.log
  max_size_mb: 5
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Engine.Type != EngineProcess {
		t.Errorf("Engine.Type = %q, want %q", cfg.Engine.Type, EngineProcess)
	}
	if cfg.Engine.Command != "my-engine --stdio" || !cfg.Engine.ReadyOnStart {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if cfg.Policy() != approval.PolicyAuto {
		t.Errorf("Policy() = %q, want %q", cfg.Policy(), approval.PolicyAuto)
	}
	if cfg.FollowupTimeout != 5*time.Second {
		t.Errorf("FollowupTimeout = %v, want 5s", cfg.FollowupTimeout)
	}
	if cfg.TaskTimeout != 2*time.Minute {
		t.Errorf("TaskTimeout = %v, want 2m", cfg.TaskTimeout)
	}
	if cfg.AutoApproval["readFiles"] != true {
		t.Errorf("AutoApproval[readFiles] = %v, want true", cfg.AutoApproval["readFiles"])
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Name != "tests" {
		t.Errorf("Rules = %+v", cfg.Rules)
	}
	set, err := cfg.RuleSet()
	if err != nil || set.Len() != 1 {
		t.Errorf("RuleSet() = %v, %v", set, err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.MaxSizeMB != 5 {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("engine:\n  command: engine\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Engine.Type != EngineProcess {
		t.Errorf("Engine.Type = %q, want %q", cfg.Engine.Type, EngineProcess)
	}
	if cfg.Policy() != approval.PolicyInteractive {
		t.Errorf("Policy() = %q, want interactive", cfg.Policy())
	}
	if cfg.FollowupTimeout != approval.DefaultFollowupTimeout {
		t.Errorf("FollowupTimeout = %v, want %v", cfg.FollowupTimeout, approval.DefaultFollowupTimeout)
	}
	if cfg.TaskTimeout != DefaultTaskTimeout {
		t.Errorf("TaskTimeout = %v, want %v", cfg.TaskTimeout, DefaultTaskTimeout)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"invalid yaml", `{{invalid yaml`, "failed to parse config"},
		{"unknown mode", "mode: yolo\n", "unknown approval mode"},
		{"unknown engine", "engine:\n  type: grpc\n", "unknown engine type"},
		{"bad websocket scheme", "engine:\n  type: websocket\n  url: http://localhost\n", "scheme must be ws or wss"},
		{"unbalanced quotes", "engine:\n  command: \"engine 'x\"\n", "engine command"},
		{"negative timeout", "followup_timeout: -1s\n", "followup_timeout"},
		{"bad rule", "rules:\n  - when: 'subtype =='\n    decision: approve\n", "rules:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadDefault(t *testing.T) {
	appdir.ResetCache()
	t.Cleanup(appdir.ResetCache)
	dir := t.TempDir()
	t.Setenv(appdir.DirEnv, dir)
	t.Setenv(appdir.ConfigEnv, "")

	cfg, path, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if path != filepath.Join(dir, appdir.ConfigFileName) {
		t.Errorf("path = %q", path)
	}
	if cfg.Engine.Type != EngineProcess {
		t.Errorf("missing file did not yield defaults: %+v", cfg)
	}

	if err := os.WriteFile(path, []byte("mode: auto\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, _, err = LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if cfg.Policy() != approval.PolicyAuto {
		t.Errorf("Policy() = %q, want auto", cfg.Policy())
	}
}
