package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/google/shlex"

	"github.com/inercia/tether/internal/logging"
)

// ParseCommand splits an engine command line with shell quoting rules:
//
//	"sh -c 'cd /dir && engine'" -> ["sh", "-c", "cd /dir && engine"]
func ParseCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}

// ProcessConfig configures an engine process.
type ProcessConfig struct {
	// Command is the engine command line.
	Command string
	// Dir is the working directory. Empty inherits ours.
	Dir string
	// Env is appended to the current environment.
	Env []string
	// Stderr receives the engine's stderr. Defaults to os.Stderr.
	Stderr io.Writer
	// ReadyOnStart marks the engine ready as soon as it is running.
	ReadyOnStart bool
	Logger       *slog.Logger
}

// Process is an engine running as a child process, speaking JSON lines
// on its stdin and stdout.
type Process struct {
	*Stream
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// StartProcess starts the engine command.
func StartProcess(ctx context.Context, cfg ProcessConfig) (*Process, error) {
	args, err := ParseCommand(cfg.Command)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Channel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Stderr = cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %q: %w", args[0], err)
	}
	logger.Info("Engine process started", "command", args[0], "pid", cmd.Process.Pid, "dir", cfg.Dir)

	opts := []StreamOption{WithLogger(logger)}
	if cfg.ReadyOnStart {
		opts = append(opts, WithReadyOnStart())
	}
	return &Process{
		Stream: NewStream(stdout, stdin, opts...),
		cmd:    cmd,
		stdin:  stdin,
	}, nil
}

// Close stops the engine process and waits for it to exit.
func (p *Process) Close() error {
	_ = p.Stream.Close()
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	// The exit status of a killed engine carries no information.
	_ = p.cmd.Wait()
	return nil
}
