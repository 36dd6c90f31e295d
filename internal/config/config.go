// Package config handles configuration loading for tether.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inercia/tether/internal/appdir"
	"github.com/inercia/tether/internal/approval"
	"github.com/inercia/tether/internal/channel"
	"github.com/inercia/tether/internal/rules"
)

const (
	// DefaultTaskTimeout bounds a single task from submission to a terminal state.
	DefaultTaskTimeout = 10 * time.Minute
)

// EngineType selects how tether talks to the agent engine.
type EngineType string

const (
	// EngineProcess starts the engine and speaks JSON lines over its stdio.
	EngineProcess EngineType = "process"
	// EngineWebSocket connects to a running engine over a WebSocket.
	EngineWebSocket EngineType = "websocket"
	// EngineACP drives an Agent Client Protocol agent through the bridge.
	EngineACP EngineType = "acp"
)

// Engine describes the agent engine to connect to.
type Engine struct {
	Type EngineType `yaml:"type"`
	// Command starts the engine (process and acp engines).
	Command string `yaml:"command,omitempty"`
	// URL of the engine (websocket engine).
	URL string `yaml:"url,omitempty"`
	// Cwd is the working directory of the engine process.
	Cwd string `yaml:"cwd,omitempty"`
	// Headers are sent with the WebSocket handshake.
	Headers map[string]string `yaml:"headers,omitempty"`
	// ReadyOnStart treats a process engine as ready once started, for
	// engines that never send a ready or state envelope first.
	ReadyOnStart bool `yaml:"ready_on_start,omitempty"`
}

// Log configures logging.
type Log struct {
	Level      string   `yaml:"level,omitempty"`
	File       string   `yaml:"file,omitempty"`
	MaxSizeMB  int      `yaml:"max_size_mb,omitempty"`
	MaxBackups int      `yaml:"max_backups,omitempty"`
	JSON       bool     `yaml:"json,omitempty"`
	Components []string `yaml:"components,omitempty"`
}

// Config represents the complete tether configuration.
type Config struct {
	Engine Engine `yaml:"engine"`
	// Mode is the approval policy: interactive or auto.
	Mode string `yaml:"mode,omitempty"`
	// FollowupTimeout bounds the wait for a followup answer in auto mode.
	FollowupTimeout time.Duration `yaml:"followup_timeout,omitempty"`
	// TaskTimeout bounds a task from submission to completion.
	TaskTimeout time.Duration `yaml:"task_timeout,omitempty"`
	// AutoApproval is sent to the engine as its updated settings in auto mode.
	AutoApproval map[string]any `yaml:"auto_approval,omitempty"`
	// Rules decide approval asks before anyone is prompted.
	Rules []rules.Rule `yaml:"rules,omitempty"`
	Log   Log          `yaml:"log,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Engine:          Engine{Type: EngineProcess},
		Mode:            string(approval.PolicyInteractive),
		FollowupTimeout: approval.DefaultFollowupTimeout,
		TaskTimeout:     DefaultTaskTimeout,
		Log:             Log{Level: "info"},
	}
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads the config file from the tether directory. A missing
// file yields Default. The returned path is the file that was looked at.
func LoadDefault() (*Config, string, error) {
	path, err := appdir.ConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), path, nil
	}
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Parse parses YAML configuration data on top of Default and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Engine.Type == "" {
		cfg.Engine.Type = EngineProcess
	}
	if cfg.Mode == "" {
		cfg.Mode = string(approval.PolicyInteractive)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration. An engine without a command or URL
// is accepted so the engine can be given on the command line.
func (c *Config) Validate() error {
	if _, err := approval.ParsePolicy(c.Mode); err != nil {
		return err
	}

	switch c.Engine.Type {
	case EngineProcess, EngineACP:
		if c.Engine.Command != "" {
			if _, err := channel.ParseCommand(c.Engine.Command); err != nil {
				return fmt.Errorf("engine command: %w", err)
			}
		}
	case EngineWebSocket:
		if c.Engine.URL != "" {
			u, err := url.Parse(c.Engine.URL)
			if err != nil {
				return fmt.Errorf("engine url: %w", err)
			}
			if u.Scheme != "ws" && u.Scheme != "wss" {
				return fmt.Errorf("engine url %q: scheme must be ws or wss", c.Engine.URL)
			}
		}
	default:
		return fmt.Errorf("unknown engine type %q (expected %q, %q or %q)",
			c.Engine.Type, EngineProcess, EngineWebSocket, EngineACP)
	}

	if c.FollowupTimeout < 0 {
		return fmt.Errorf("followup_timeout must not be negative")
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("task_timeout must not be negative")
	}

	if _, err := rules.Compile(c.Rules); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}

// Policy returns the parsed approval policy.
func (c *Config) Policy() approval.Policy {
	p, err := approval.ParsePolicy(c.Mode)
	if err != nil {
		return approval.PolicyInteractive
	}
	return p
}

// RuleSet compiles the configured approval rules.
func (c *Config) RuleSet() (*rules.Set, error) {
	return rules.Compile(c.Rules)
}
