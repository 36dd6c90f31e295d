package acp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coder/acp-go-sdk"

	"github.com/inercia/tether/internal/message"
)

var errTerminalUnsupported = errors.New("terminals are not supported by this client")

// agentClient answers the agent's requests on behalf of a Bridge.
type agentClient struct {
	bridge *Bridge
	fs     FileSystem
	logger *slog.Logger
}

var _ acp.Client = (*agentClient)(nil)

func (c *agentClient) SessionUpdate(ctx context.Context, params acp.SessionNotification) error {
	u := params.Update
	switch {
	case u.AgentMessageChunk != nil:
		if t := u.AgentMessageChunk.Content.Text; t != nil {
			c.bridge.appendChunk(message.SayText, t.Text)
		}
	case u.AgentThoughtChunk != nil:
		if t := u.AgentThoughtChunk.Content.Text; t != nil {
			c.bridge.appendChunk(message.SayReasoning, t.Text)
		}
	case u.ToolCall != nil:
		c.bridge.toolCall(u.ToolCall.ToolCallId, u.ToolCall.Title, string(u.ToolCall.Status))
	case u.ToolCallUpdate != nil:
		if u.ToolCallUpdate.Status != nil {
			c.bridge.toolCall(u.ToolCallUpdate.ToolCallId, "", string(*u.ToolCallUpdate.Status))
		}
	case u.Plan != nil:
		c.logger.Debug("Ignoring plan update")
	}
	return nil
}

func (c *agentClient) RequestPermission(ctx context.Context, params acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	return c.bridge.requestPermission(ctx, params), nil
}

func (c *agentClient) ReadTextFile(ctx context.Context, params acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	content, err := c.fs.ReadTextFile(params.Path, params.Line, params.Limit)
	if err != nil {
		c.logger.Debug("Agent file read failed", "path", params.Path, "error", err)
		return acp.ReadTextFileResponse{}, err
	}
	c.logger.Debug("Agent read file", "path", params.Path, "bytes", len(content))
	return acp.ReadTextFileResponse{Content: content}, nil
}

func (c *agentClient) WriteTextFile(ctx context.Context, params acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	if err := c.fs.WriteTextFile(params.Path, params.Content); err != nil {
		c.logger.Debug("Agent file write failed", "path", params.Path, "error", err)
		return acp.WriteTextFileResponse{}, err
	}
	c.logger.Debug("Agent wrote file", "path", params.Path, "bytes", len(params.Content))
	return acp.WriteTextFileResponse{}, nil
}

// The client does not advertise terminal support, so agents should not
// call these.

func (c *agentClient) CreateTerminal(ctx context.Context, params acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	return acp.CreateTerminalResponse{}, errTerminalUnsupported
}

func (c *agentClient) TerminalOutput(ctx context.Context, params acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	return acp.TerminalOutputResponse{}, errTerminalUnsupported
}

func (c *agentClient) ReleaseTerminal(ctx context.Context, params acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	return acp.ReleaseTerminalResponse{}, errTerminalUnsupported
}

func (c *agentClient) WaitForTerminalExit(ctx context.Context, params acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	return acp.WaitForTerminalExitResponse{}, errTerminalUnsupported
}

func (c *agentClient) KillTerminalCommand(ctx context.Context, params acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	return acp.KillTerminalCommandResponse{}, errTerminalUnsupported
}
