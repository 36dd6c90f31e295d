package cmd

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"os"
	"time"

	"github.com/inercia/tether/internal/acp"
	"github.com/inercia/tether/internal/approval"
	"github.com/inercia/tether/internal/channel"
	"github.com/inercia/tether/internal/client"
	"github.com/inercia/tether/internal/config"
	"github.com/inercia/tether/internal/logging"
	"github.com/inercia/tether/internal/render"
)

const settingsTimeout = 10 * time.Second

// openEngine connects to the engine described by c.
func openEngine(ctx context.Context, c *config.Config) (channel.Channel, error) {
	switch c.Engine.Type {
	case config.EngineProcess, "":
		if c.Engine.Command == "" {
			return nil, fmt.Errorf("no engine command configured")
		}
		return channel.StartProcess(ctx, channel.ProcessConfig{
			Command:      c.Engine.Command,
			Dir:          c.Engine.Cwd,
			ReadyOnStart: c.Engine.ReadyOnStart,
		})
	case config.EngineWebSocket:
		if c.Engine.URL == "" {
			return nil, fmt.Errorf("no engine url configured")
		}
		header := http.Header{}
		for k, v := range c.Engine.Headers {
			header.Set(k, v)
		}
		return channel.DialWebSocket(ctx, channel.WebSocketConfig{
			URL:    c.Engine.URL,
			Header: header,
		})
	case config.EngineACP:
		if c.Engine.Command == "" {
			return nil, fmt.Errorf("no acp agent command configured")
		}
		return acp.Start(ctx, acp.Config{
			Command:     c.Engine.Command,
			Cwd:         c.Engine.Cwd,
			AutoApprove: c.Policy() == approval.PolicyAuto,
		})
	default:
		return nil, fmt.Errorf("unknown engine type %q", c.Engine.Type)
	}
}

// engineSettings returns the settings pushed to the engine in auto mode.
// The ACP bridge reads its own auto-approval switch from them.
func engineSettings(c *config.Config) map[string]any {
	settings := maps.Clone(c.AutoApproval)
	if c.Engine.Type == config.EngineACP {
		if settings == nil {
			settings = make(map[string]any)
		}
		if _, ok := settings[acp.SettingAutoApprove]; !ok {
			settings[acp.SettingAutoApprove] = true
		}
	}
	return settings
}

// engineSession is a running client with its event loop and config watcher.
type engineSession struct {
	client  *client.Client
	watcher *config.Watcher
	cancel  context.CancelFunc
	runDone chan error
}

// openSession connects to the configured engine and starts the client.
// prompter may be nil when no human is available.
func openSession(ctx context.Context, prompter approval.Prompter) (*engineSession, error) {
	rules, err := cfg.RuleSet()
	if err != nil {
		return nil, err
	}

	ch, err := openEngine(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine: %w", err)
	}

	var renderer render.Renderer = render.NewTerminal(os.Stdout)
	if quiet {
		renderer = render.Silent{}
	}

	c := client.New(client.Config{
		Channel:         ch,
		Policy:          cfg.Policy(),
		Prompter:        prompter,
		Renderer:        renderer,
		Decider:         rules,
		FollowupTimeout: cfg.FollowupTimeout,
		TaskTimeout:     cfg.TaskTimeout,
		Settings:        engineSettings(cfg),
	})

	runCtx, cancel := context.WithCancel(context.Background())
	s := &engineSession{client: c, cancel: cancel, runDone: make(chan error, 1)}
	go func() { s.runDone <- c.Run(runCtx) }()

	if cfgSource != "" {
		s.watcher = watchConfig(cfgSource, c)
	}
	return s, nil
}

// watchConfig applies rule and auto-approval changes to c while it runs.
func watchConfig(path string, c *client.Client) *config.Watcher {
	logger := logging.Settings()
	w, err := config.NewWatcher(path, func(next *config.Config) {
		rules, err := next.RuleSet()
		if err != nil {
			logger.Warn("Keeping previous approval rules", "error", err)
		} else {
			c.SetDecider(rules)
			logger.Info("Approval rules updated", "rules", rules.Len())
		}

		if next.Policy() != cfg.Policy() {
			logger.Warn("Approval mode changes take effect on restart", "mode", next.Mode)
		}

		ctx, cancel := context.WithTimeout(context.Background(), settingsTimeout)
		defer cancel()
		if err := c.UpdateSettings(ctx, engineSettings(next)); err != nil {
			logger.Warn("Failed to update engine settings", "error", err)
		}
	}, logger)
	if err != nil {
		logger.Warn("Configuration changes will not be picked up", "path", path, "error", err)
		return nil
	}
	w.Start()
	return w
}

// waitReady blocks until the engine accepts commands.
func (s *engineSession) waitReady(ctx context.Context) error {
	select {
	case <-s.client.Ready():
		return nil
	case err := <-s.runDone:
		s.runDone <- err
		return fmt.Errorf("engine went away before it was ready: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the watcher, the client and its engine.
func (s *engineSession) Close() error {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	err := s.client.Close()
	s.cancel()
	<-s.runDone
	return err
}
