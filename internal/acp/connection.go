// Package acp drives an Agent Client Protocol agent as a tether engine.
package acp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/coder/acp-go-sdk"

	"github.com/inercia/tether/internal/channel"
	"github.com/inercia/tether/internal/logging"
)

// Connection is a running ACP agent process with one open session.
type Connection struct {
	cmd       *exec.Cmd
	conn      *acp.ClientSideConnection
	sessionID acp.SessionId
	logger    *slog.Logger
}

// Dial starts the agent command, performs the protocol handshake and
// opens a session rooted at cwd.
func Dial(ctx context.Context, command, cwd string, client acp.Client, logger *slog.Logger) (*Connection, error) {
	args, err := channel.ParseCommand(command)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stderr = os.Stderr
	if cwd != "" {
		cmd.Dir = cwd
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ACP agent: %w", err)
	}
	logger.Info("Started ACP agent", "command", command, "cwd", cwd, "pid", cmd.Process.Pid)

	conn := acp.NewClientSideConnection(client, stdin, newLineFilter(stdout, logger))
	conn.SetLogger(logging.DowngradeInfoToDebug(logger))

	c := &Connection{cmd: cmd, conn: conn, logger: logger}
	if err := c.handshake(ctx, cwd); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Connection) handshake(ctx context.Context, cwd string) error {
	initResp, err := c.conn.Initialize(ctx, acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersionNumber,
		ClientCapabilities: acp.ClientCapabilities{
			Fs: acp.FileSystemCapability{
				ReadTextFile:  true,
				WriteTextFile: true,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("initialize error: %w", err)
	}
	c.logger.Debug("ACP agent initialized", "protocol_version", initResp.ProtocolVersion)

	sess, err := c.conn.NewSession(ctx, acp.NewSessionRequest{
		Cwd:        cwd,
		McpServers: []acp.McpServer{},
	})
	if err != nil {
		return fmt.Errorf("new session error: %w", err)
	}
	c.sessionID = sess.SessionId
	c.logger.Info("ACP session created", "session_id", string(sess.SessionId))
	return nil
}

// Prompt sends content to the agent and waits until it finishes the turn.
func (c *Connection) Prompt(ctx context.Context, content []acp.ContentBlock) error {
	if c.sessionID == "" {
		return errors.New("no active session")
	}
	_, err := c.conn.Prompt(ctx, acp.PromptRequest{
		SessionId: c.sessionID,
		Prompt:    content,
	})
	return err
}

// Cancel asks the agent to stop the current turn.
func (c *Connection) Cancel(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	return c.conn.Cancel(ctx, acp.CancelNotification{SessionId: c.sessionID})
}

// Done is closed when the connection to the agent ends.
func (c *Connection) Done() <-chan struct{} {
	return c.conn.Done()
}

// Close kills the agent process and waits for it.
func (c *Connection) Close() error {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	// The process was killed, so its exit status carries no information.
	_ = c.cmd.Wait()
	return nil
}
