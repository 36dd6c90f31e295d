// Package logging configures the process-wide structured logger.
//
// Logs always go to stderr (and optionally a rotated file), never to the
// terminal renderer, so they never interleave with agent output on stdout.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalMu     sync.RWMutex
	globalLogger *slog.Logger

	// fileWriter is the rotated log file, if any, kept for Close.
	fileMu     sync.Mutex
	fileWriter io.WriteCloser

	componentsMu      sync.RWMutex
	allowedComponents map[string]bool
)

// FileConfig configures the rotated log file.
type FileConfig struct {
	// Path of the log file. Empty disables file logging.
	Path string
	// MaxSizeMB is the size at which the file is rotated. Default: 10.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Default: 3.
	MaxBackups int
	Compress   bool
}

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level for stderr (debug, info, warn, error).
	Level string
	// FileLevel is the minimum level for the log file. Defaults to Level.
	FileLevel string
	File      FileConfig
	JSON      bool
	// Components restricts output to the named components. Empty means all.
	Components []string
	// Console overrides stderr. Used by tests.
	Console io.Writer
}

// Initialize installs the global logger described by cfg.
func Initialize(cfg Config) error {
	consoleLevel := ParseLevel(cfg.Level)
	fileLevel := consoleLevel
	if cfg.FileLevel != "" {
		fileLevel = ParseLevel(cfg.FileLevel)
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	componentsMu.Lock()
	allowedComponents = nil
	if len(cfg.Components) > 0 {
		allowedComponents = make(map[string]bool, len(cfg.Components))
		for _, c := range cfg.Components {
			allowedComponents[strings.TrimSpace(c)] = true
		}
	}
	componentsMu.Unlock()

	newHandler := func(w io.Writer, level slog.Level) slog.Handler {
		opts := &slog.HandlerOptions{Level: level}
		if cfg.JSON {
			return slog.NewJSONHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}

	fileMu.Lock()
	defer fileMu.Unlock()
	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}

	var handler slog.Handler
	if cfg.File.Path != "" {
		maxSize := cfg.File.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := cfg.File.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   cfg.File.Compress,
		}
		fileWriter = lj
		handler = &fanoutHandler{handlers: []slog.Handler{
			newHandler(console, consoleLevel),
			newHandler(lj, fileLevel),
		}}
	} else {
		handler = newHandler(console, consoleLevel)
	}

	logger := slog.New(handler)
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
	slog.SetDefault(logger)
	return nil
}

// Get returns the global logger, or slog.Default before Initialize.
func Get() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

// Close closes the log file, if one is open.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	if err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanoutHandler sends each record to every handler enabled for its level.
// The console and the file may run at different levels.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, inner := range h.handlers {
		if inner.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, inner := range h.handlers {
		if !inner.Enabled(ctx, r.Level) {
			continue
		}
		if err := inner.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, inner := range h.handlers {
		out[i] = inner.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: out}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, inner := range h.handlers {
		out[i] = inner.WithGroup(name)
	}
	return &fanoutHandler{handlers: out}
}

func componentAllowed(component string) bool {
	componentsMu.RLock()
	defer componentsMu.RUnlock()
	return allowedComponents == nil || allowedComponents[component]
}

// componentHandler drops records of components filtered out by Config.Components.
type componentHandler struct {
	inner     slog.Handler
	component string
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return componentAllowed(h.component) && h.inner.Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	if !componentAllowed(h.component) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &componentHandler{inner: h.inner.WithAttrs(attrs), component: h.component}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{inner: h.inner.WithGroup(name), component: h.component}
}

// WithComponent returns a logger tagged with component=name.
func WithComponent(name string) *slog.Logger {
	base := Get().Handler().WithAttrs([]slog.Attr{slog.String("component", name)})
	return slog.New(&componentHandler{inner: base, component: name})
}

// Client returns the logger for the session client.
func Client() *slog.Logger { return WithComponent("client") }

// Channel returns the logger for engine transports.
func Channel() *slog.Logger { return WithComponent("channel") }

// Approval returns the logger for ask handling.
func Approval() *slog.Logger { return WithComponent("approval") }

// Bridge returns the logger for the ACP bridge.
func Bridge() *slog.Logger { return WithComponent("acp") }

// Settings returns the logger for configuration loading and reloads.
func Settings() *slog.Logger { return WithComponent("config") }

// WithTask returns base with the task id attached.
func WithTask(base *slog.Logger, taskID string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With("task_id", taskID)
}

// DowngradeInfoToDebug returns a logger that logs INFO records at DEBUG.
// Used for third-party libraries that are chatty at INFO.
func DowngradeInfoToDebug(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return nil
	}
	return slog.New(&downgradeHandler{inner: logger.Handler()})
}

type downgradeHandler struct {
	inner slog.Handler
}

func (h *downgradeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level == slog.LevelInfo {
		level = slog.LevelDebug
	}
	return h.inner.Enabled(ctx, level)
}

func (h *downgradeHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level != slog.LevelInfo {
		return h.inner.Handle(ctx, r)
	}
	lowered := slog.NewRecord(r.Time, slog.LevelDebug, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		lowered.AddAttrs(a)
		return true
	})
	return h.inner.Handle(ctx, lowered)
}

func (h *downgradeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &downgradeHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *downgradeHandler) WithGroup(name string) slog.Handler {
	return &downgradeHandler{inner: h.inner.WithGroup(name)}
}
