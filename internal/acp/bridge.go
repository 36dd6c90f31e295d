package acp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coder/acp-go-sdk"

	"github.com/inercia/tether/internal/channel"
	"github.com/inercia/tether/internal/clock"
	"github.com/inercia/tether/internal/logging"
	"github.com/inercia/tether/internal/message"
)

// SettingAutoApprove is the updateSettings key toggling the bridge's own
// approval of permission requests.
const SettingAutoApprove = "autoApprove"

// ErrTaskRunning is returned by a newTask command while a task runs.
var ErrTaskRunning = errors.New("a task is already running")

// Config configures a Bridge.
type Config struct {
	// Command starts the ACP agent.
	Command string
	// Cwd is the session working directory. Defaults to the current one.
	Cwd string
	// AutoApprove answers permission requests without raising asks.
	AutoApprove bool
	// FileSystem serves file requests. Defaults to the local disk
	// confined to Cwd.
	FileSystem FileSystem
	Clock      clock.Clock
	Logger     *slog.Logger
}

// session is the part of Connection the bridge drives.
type session interface {
	Prompt(ctx context.Context, content []acp.ContentBlock) error
	Cancel(ctx context.Context) error
	Done() <-chan struct{}
	Close() error
}

// Bridge presents an ACP agent as a message engine: agent updates become
// say and ask messages delivered as messageUpdated envelopes, and
// commands become prompts, cancellations and permission outcomes.
type Bridge struct {
	logger *slog.Logger
	clk    clock.Clock
	client *agentClient
	sess   session

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	wg     sync.WaitGroup

	// stateMu orders emissions and guards the open partial message.
	stateMu sync.Mutex
	lastTS  int64
	open    *message.Message
	tools   map[acp.ToolCallId]string

	// taskMu guards the task and permission bookkeeping.
	taskMu      sync.Mutex
	autoApprove bool
	running     bool
	cancelled   bool
	waiters     []*permissionWait
	// retry is the prompt of a task that failed or was cancelled. It is
	// sent again when the resulting ask is approved.
	retry []acp.ContentBlock

	emitMu  sync.Mutex
	closed  bool
	inbound chan message.Inbound

	closeOnce sync.Once
}

type permissionWait struct {
	options []acp.PermissionOption
	answer  chan acp.RequestPermissionResponse
}

var _ channel.Channel = (*Bridge)(nil)

func newBridge(cfg Config) *Bridge {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Bridge()
	}
	if cfg.FileSystem == nil {
		cfg.FileSystem = &OSFileSystem{Root: cfg.Cwd}
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		logger:      cfg.Logger,
		clk:         cfg.Clock,
		ctx:         ctx,
		cancel:      cancel,
		ready:       make(chan struct{}),
		tools:       make(map[acp.ToolCallId]string),
		autoApprove: cfg.AutoApprove,
		inbound:     make(chan message.Inbound, 64),
	}
	b.client = &agentClient{bridge: b, fs: cfg.FileSystem, logger: cfg.Logger}
	return b
}

// Start launches the agent and returns a ready bridge.
func Start(ctx context.Context, cfg Config) (*Bridge, error) {
	if cfg.Cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.Cwd = wd
	}
	cwd, err := filepath.Abs(cfg.Cwd)
	if err != nil {
		return nil, err
	}
	cfg.Cwd = cwd

	b := newBridge(cfg)
	conn, err := Dial(ctx, cfg.Command, cfg.Cwd, b.client, b.logger)
	if err != nil {
		b.cancel()
		return nil, err
	}
	b.attach(conn)
	return b, nil
}

// attach binds the bridge to an open session and marks it ready.
func (b *Bridge) attach(s session) {
	b.sess = s
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		select {
		case <-s.Done():
			b.logger.Info("ACP agent connection closed")
			b.shutdown()
		case <-b.ctx.Done():
		}
	}()
	close(b.ready)
}

func (b *Bridge) Ready() <-chan struct{} { return b.ready }

func (b *Bridge) Inbound() <-chan message.Inbound { return b.inbound }

// Send executes a command.
func (b *Bridge) Send(ctx context.Context, out message.Outbound) error {
	if b.ctx.Err() != nil {
		return channel.ErrClosed
	}
	switch out.Type {
	case message.OutboundNewTask:
		return b.startTask(out.Text, out.Images)
	case message.OutboundAskResponse:
		b.answerPermission(out)
		return nil
	case message.OutboundCancelTask:
		return b.cancelTask(ctx)
	case message.OutboundUpdateSettings:
		if v, ok := out.UpdatedSettings[SettingAutoApprove].(bool); ok {
			b.taskMu.Lock()
			b.autoApprove = v
			b.taskMu.Unlock()
			b.logger.Debug("Updated auto-approval", "auto_approve", v)
		}
		return nil
	default:
		return fmt.Errorf("unsupported command %q", out.Type)
	}
}

// Close stops the agent. Inbound is closed once every task goroutine
// has finished.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.cancel()
		b.releaseWaiters()
		if b.sess != nil {
			err = b.sess.Close()
		}
		b.wg.Wait()
		b.shutdown()
	})
	return err
}

func (b *Bridge) shutdown() {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}

func (b *Bridge) startTask(text string, images []string) error {
	var imgs []Image
	for _, s := range images {
		img, err := ParseImage(s)
		if err != nil {
			return err
		}
		imgs = append(imgs, img)
	}

	b.taskMu.Lock()
	if b.running {
		b.taskMu.Unlock()
		return ErrTaskRunning
	}
	b.running = true
	b.cancelled = false
	b.retry = nil
	b.taskMu.Unlock()

	b.stateMu.Lock()
	b.closeOpenLocked()
	b.tools = make(map[acp.ToolCallId]string)
	b.emitLocked(message.Message{Type: message.TypeSay, Say: message.SayTask, Text: text, Images: images})
	b.stateMu.Unlock()

	b.prompt(BuildContentBlocks(text, imgs))
	return nil
}

// prompt sends content to the agent in the background. The caller has
// marked the task running.
func (b *Bridge) prompt(content []acp.ContentBlock) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := b.sess.Prompt(b.ctx, content)

		b.taskMu.Lock()
		cancelled := b.cancelled
		b.running = false
		if cancelled || err != nil {
			b.retry = content
		}
		b.taskMu.Unlock()

		b.finishTask(err, cancelled)
	}()
}

func (b *Bridge) finishTask(err error, cancelled bool) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.closeOpenLocked()

	if b.ctx.Err() != nil {
		return
	}
	switch {
	case cancelled:
		b.logger.Info("Task cancelled")
		b.emitLocked(message.Message{Type: message.TypeAsk, Ask: message.AskResumeTask})
	case err != nil:
		b.logger.Warn("Prompt failed", "error", err)
		b.emitLocked(message.Message{Type: message.TypeAsk, Ask: message.AskAPIReqFailed, Text: err.Error()})
	default:
		b.emitLocked(message.Message{Type: message.TypeAsk, Ask: message.AskCompletionResult})
	}
}

func (b *Bridge) cancelTask(ctx context.Context) error {
	b.taskMu.Lock()
	if !b.running {
		b.taskMu.Unlock()
		return nil
	}
	b.cancelled = true
	b.taskMu.Unlock()

	b.releaseWaiters()
	return b.sess.Cancel(ctx)
}

// releaseWaiters cancels every pending permission request.
func (b *Bridge) releaseWaiters() {
	b.taskMu.Lock()
	waiters := b.waiters
	b.waiters = nil
	b.taskMu.Unlock()
	for _, w := range waiters {
		w.answer <- CancelledPermissionResponse()
	}
}

// answerPermission resolves the oldest pending permission request, or
// the resume ask of an interrupted task when none is pending.
func (b *Bridge) answerPermission(out message.Outbound) {
	b.taskMu.Lock()
	if len(b.waiters) == 0 {
		b.answerRetryLocked(out)
		return
	}
	w := b.waiters[0]
	b.waiters = b.waiters[1:]
	b.taskMu.Unlock()

	w.answer <- AnswerPermission(w.options, out)
}

// answerRetryLocked resumes or closes an interrupted task. It releases
// taskMu.
func (b *Bridge) answerRetryLocked(out message.Outbound) {
	content := b.retry
	if content == nil || b.running {
		b.taskMu.Unlock()
		b.logger.Debug("Ignoring ask response with nothing waiting for it", "response", string(out.AskResponse))
		return
	}
	b.retry = nil

	var next message.Message
	switch {
	case out.AskResponse == message.AskResponseNo:
		b.taskMu.Unlock()
		b.logger.Info("Interrupted task abandoned")
		b.stateMu.Lock()
		b.emitLocked(message.Message{Type: message.TypeAsk, Ask: message.AskCompletionResult})
		b.stateMu.Unlock()
		return
	case out.AskResponse == message.AskResponseMessage && strings.TrimSpace(out.Text) != "":
		content = BuildContentBlocks(out.Text, nil)
		next = message.Message{Type: message.TypeSay, Say: message.SayUserFeedback, Text: out.Text}
	default:
		next = message.Message{Type: message.TypeSay, Say: message.SayAPIReqRetried}
	}
	b.running = true
	b.cancelled = false
	b.taskMu.Unlock()

	b.logger.Info("Resuming interrupted task", "response", string(out.AskResponse))
	b.stateMu.Lock()
	b.emitLocked(next)
	b.stateMu.Unlock()
	b.prompt(content)
}

type permissionPayload struct {
	Tool    string   `json:"tool"`
	ID      string   `json:"id,omitempty"`
	Options []string `json:"options,omitempty"`
}

// requestPermission raises a tool ask and waits for its answer.
func (b *Bridge) requestPermission(ctx context.Context, params acp.RequestPermissionRequest) acp.RequestPermissionResponse {
	b.taskMu.Lock()
	auto := b.autoApprove
	b.taskMu.Unlock()
	if auto {
		return AutoApprovePermission(params.Options)
	}

	title := "permission"
	if params.ToolCall.Title != nil && *params.ToolCall.Title != "" {
		title = *params.ToolCall.Title
	}
	payload := permissionPayload{Tool: title, ID: string(params.ToolCall.ToolCallId)}
	for _, o := range params.Options {
		payload.Options = append(payload.Options, o.Name)
	}
	data, _ := json.Marshal(payload)

	w := &permissionWait{options: params.Options, answer: make(chan acp.RequestPermissionResponse, 1)}
	b.taskMu.Lock()
	b.waiters = append(b.waiters, w)
	b.taskMu.Unlock()

	b.stateMu.Lock()
	b.closeOpenLocked()
	b.emitLocked(message.Message{Type: message.TypeAsk, Ask: message.AskTool, Text: string(data)})
	b.stateMu.Unlock()

	select {
	case resp := <-w.answer:
		return resp
	case <-ctx.Done():
	case <-b.ctx.Done():
	}

	b.taskMu.Lock()
	for i, other := range b.waiters {
		if other == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			break
		}
	}
	b.taskMu.Unlock()
	return CancelledPermissionResponse()
}

// appendChunk grows the open partial message of the given say subtype,
// or starts a new one.
func (b *Bridge) appendChunk(say message.Say, text string) {
	if text == "" {
		return
	}
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if b.open == nil || b.open.Say != say {
		b.closeOpenLocked()
		b.open = &message.Message{TS: b.nextTSLocked(), Type: message.TypeSay, Say: say, Partial: true}
	}
	b.open.Text += text
	b.sendLocked(*b.open)
}

type toolPayload struct {
	Tool   string `json:"tool"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
}

func (b *Bridge) toolCall(id acp.ToolCallId, title, status string) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if title == "" {
		title = b.tools[id]
	} else {
		b.tools[id] = title
	}
	if title == "" {
		title = string(id)
	}
	data, _ := json.Marshal(toolPayload{Tool: title, ID: string(id), Status: status})
	b.closeOpenLocked()
	b.emitLocked(message.Message{Type: message.TypeSay, Say: message.SayTool, Text: string(data)})
}

// closeOpenLocked emits the final, complete version of the open partial.
func (b *Bridge) closeOpenLocked() {
	if b.open == nil {
		return
	}
	m := *b.open
	m.Partial = false
	b.open = nil
	b.sendLocked(m)
}

// emitLocked assigns a fresh timestamp to m and delivers it.
func (b *Bridge) emitLocked(m message.Message) {
	m.TS = b.nextTSLocked()
	b.sendLocked(m)
}

func (b *Bridge) nextTSLocked() int64 {
	ts := b.clk.Now().UnixMilli()
	if ts <= b.lastTS {
		ts = b.lastTS + 1
	}
	b.lastTS = ts
	return ts
}

func (b *Bridge) sendLocked(m message.Message) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	if b.closed {
		return
	}
	env := message.Inbound{Type: message.InboundMessageUpdated, Message: &m}
	select {
	case b.inbound <- env:
	case <-b.ctx.Done():
	}
}
