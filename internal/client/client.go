package client

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/inercia/tether/internal/approval"
	"github.com/inercia/tether/internal/channel"
	"github.com/inercia/tether/internal/clock"
	"github.com/inercia/tether/internal/logging"
	"github.com/inercia/tether/internal/message"
	"github.com/inercia/tether/internal/render"
	"github.com/inercia/tether/internal/session"
	"github.com/inercia/tether/internal/state"
)

// DefaultTaskTimeout bounds a task from submission to a terminal state.
const DefaultTaskTimeout = 10 * time.Minute

const commandTimeout = 30 * time.Second

var (
	// ErrNotReady is returned when a task is submitted before the engine
	// signalled readiness.
	ErrNotReady = errors.New("engine not ready")
	// ErrTaskTimedOut is returned when a task does not settle in time.
	ErrTaskTimedOut = errors.New("task timed out")
	// ErrTaskCancelled is returned by SubmitTask after Cancel.
	ErrTaskCancelled = errors.New("task cancelled")
	// ErrTaskInProgress is returned when a task is submitted while
	// another one runs.
	ErrTaskInProgress = errors.New("another task is in progress")
	// ErrChannelClosed is returned once the engine channel is gone.
	ErrChannelClosed = errors.New("engine channel closed")
)

// Config configures a Client.
type Config struct {
	Channel channel.Channel
	Policy  approval.Policy
	// Prompter reads human answers. Without one, asks get their defaults.
	Prompter approval.Prompter
	// Renderer shows the conversation. Defaults to render.Silent.
	Renderer        render.Renderer
	Decider         approval.Decider
	Clock           clock.Clock
	FollowupTimeout time.Duration
	TaskTimeout     time.Duration
	// Settings are sent to the engine as updateSettings in auto mode.
	Settings map[string]any
	Logger   *slog.Logger
}

// Client drives one engine session.
type Client struct {
	ch          channel.Channel
	store       *session.Store
	engine      *approval.Engine
	presenter   *render.Presenter
	clk         clock.Clock
	logger      *slog.Logger
	policy      approval.Policy
	taskTimeout time.Duration

	settingsMu sync.Mutex
	settings   map[string]any

	taskMu   sync.Mutex
	cancelMu sync.Mutex
	cancelCh chan struct{}

	// staleTS is the newest ts seen before the current task started.
	// Messages at or below it belong to earlier tasks.
	staleTS atomic.Int64

	unsubscribe func()
	done        chan struct{}
	runOnce     sync.Once
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// New creates a Client. Call Run to start processing the channel.
func New(cfg Config) *Client {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Client()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.Silent{}
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if cfg.Policy == "" {
		cfg.Policy = approval.PolicyInteractive
	}

	c := &Client{
		ch:          cfg.Channel,
		store:       session.NewStore(),
		presenter:   render.NewPresenter(cfg.Renderer),
		clk:         cfg.Clock,
		logger:      cfg.Logger,
		policy:      cfg.Policy,
		taskTimeout: cfg.TaskTimeout,
		settings:    maps.Clone(cfg.Settings),
		done:        make(chan struct{}),
	}
	c.engine = approval.New(approval.Config{
		Policy:          cfg.Policy,
		FollowupTimeout: cfg.FollowupTimeout,
		Prompter:        cfg.Prompter,
		Sender:          cfg.Channel,
		Decider:         cfg.Decider,
		Clock:           cfg.Clock,
	})
	c.unsubscribe = c.store.Subscribe(c.onChange)
	return c
}

// onChange renders and inspects every message a mutation touched.
func (c *Client) onChange(change session.Change) {
	if change.Reason == session.ReasonClear || change.Reason == session.ReasonReset {
		c.presenter.Reset()
	}
	for _, m := range change.Updated {
		c.presenter.Present(m)
		c.engine.Observe(m)
	}
}

// Run applies inbound envelopes until ctx ends or the channel closes.
// It must run for SubmitTask to make progress.
func (c *Client) Run(ctx context.Context) error {
	defer c.runOnce.Do(func() { close(c.done) })

	ready := c.ch.Ready()
	inbound := c.ch.Inbound()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
			ready = nil
			c.logger.Debug("Engine ready")
			c.pushSettings()
		case env, ok := <-inbound:
			if !ok {
				c.logger.Info("Engine channel closed")
				return ErrChannelClosed
			}
			c.apply(env)
		}
	}
}

func (c *Client) apply(env message.Inbound) {
	switch env.Type {
	case message.InboundState:
		if env.State == nil {
			c.logger.Warn("State envelope without state")
			return
		}
		st := *env.State
		st.Messages = c.dropStale(st.Messages)
		if len(st.Messages) == 0 && len(env.State.Messages) > 0 {
			c.logger.Debug("Ignoring state from an earlier task", "messages", len(env.State.Messages))
			return
		}
		c.store.MergeState(st)
	case message.InboundMessageUpdated:
		if env.Message == nil {
			c.logger.Warn("messageUpdated envelope without message")
			return
		}
		if stale := c.staleTS.Load(); stale != 0 && env.Message.TS <= stale {
			c.logger.Debug("Ignoring message from an earlier task", "ts", env.Message.TS)
			return
		}
		c.store.MergeOne(*env.Message)
	case message.InboundReady:
	default:
		c.logger.Debug("Ignoring envelope", "type", string(env.Type))
	}
}

// dropStale removes messages of earlier tasks.
func (c *Client) dropStale(msgs []message.Message) []message.Message {
	stale := c.staleTS.Load()
	if stale == 0 {
		return msgs
	}
	out := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.TS > stale {
			out = append(out, m)
		}
	}
	return out
}

// pushSettings sends the auto-approval settings in auto mode.
func (c *Client) pushSettings() {
	if c.policy != approval.PolicyAuto {
		return
	}
	c.settingsMu.Lock()
	settings := maps.Clone(c.settings)
	c.settingsMu.Unlock()
	if len(settings) == 0 {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := c.ch.Send(ctx, message.UpdateSettings(settings)); err != nil {
			c.logger.Warn("Failed to send settings", "error", err)
		}
	}()
}

// Ready is closed once the engine accepts commands.
func (c *Client) Ready() <-chan struct{} { return c.ch.Ready() }

func (c *Client) isReady() bool {
	select {
	case <-c.ch.Ready():
		return true
	default:
		return false
	}
}

// SubmitTask starts a new task and blocks until it reaches a terminal
// state, the task timeout expires, Cancel is called or ctx ends. Prompts
// still open when the task settles are withdrawn; an ask that settled
// the task stays pending for Resume.
func (c *Client) SubmitTask(ctx context.Context, text string, images ...string) (state.Info, error) {
	if !c.isReady() {
		return state.Info{}, ErrNotReady
	}
	if !c.taskMu.TryLock() {
		return state.Info{}, ErrTaskInProgress
	}
	defer c.taskMu.Unlock()

	logger := logging.WithTask(c.logger, uuid.NewString())
	cancelCh, done := c.beginTask()
	defer done()

	latest, unsubscribe := c.watch()
	defer unsubscribe()

	if last, ok := c.lastTS(); ok && last > c.staleTS.Load() {
		c.staleTS.Store(last)
	}
	c.engine.Reset()
	c.store.Clear()

	out := message.NewTask(text)
	out.Images = images
	if err := c.ch.Send(ctx, out); err != nil {
		return c.store.State(), err
	}
	logger.Info("Task submitted", "length", len(text), "images", len(images))

	return c.settle(ctx, logger, latest, c.staleTS.Load(), cancelCh)
}

// Resume answers the ask that settled the last task, such as a failed
// request or an interrupted task, and blocks until the task settles
// again. It fails with approval.ErrNoPendingAsk when the session does
// not end on such an ask.
func (c *Client) Resume(ctx context.Context, resp approval.Response) (state.Info, error) {
	if !c.isReady() {
		return state.Info{}, ErrNotReady
	}
	if !c.taskMu.TryLock() {
		return state.Info{}, ErrTaskInProgress
	}
	defer c.taskMu.Unlock()

	msgs := c.store.Messages()
	if len(msgs) == 0 {
		return c.store.State(), approval.ErrNoPendingAsk
	}
	last := msgs[len(msgs)-1]
	if !last.IsAsk() || last.Partial || !last.Ask.Category().Settles() || c.engine.Status(last.TS) != approval.Surfaced {
		return c.store.State(), approval.ErrNoPendingAsk
	}

	logger := logging.WithTask(c.logger, uuid.NewString())
	cancelCh, done := c.beginTask()
	defer done()

	latest, unsubscribe := c.watch()
	defer unsubscribe()

	if err := c.engine.Respond(ctx, resp); err != nil {
		return c.store.State(), err
	}
	logger.Info("Task resumed", "ask", string(last.Ask), "response", resp.Kind.String())

	return c.settle(ctx, logger, latest, last.TS, cancelCh)
}

// beginTask installs the cancel channel of a new task. The returned
// func removes it.
func (c *Client) beginTask() (chan struct{}, func()) {
	cancelCh := make(chan struct{})
	c.cancelMu.Lock()
	c.cancelCh = cancelCh
	c.cancelMu.Unlock()
	return cancelCh, func() {
		c.cancelMu.Lock()
		c.cancelCh = nil
		c.cancelMu.Unlock()
	}
}

// watch delivers the newest snapshot after every store change. The
// client's own listener has observed a change by the time it arrives.
func (c *Client) watch() (<-chan session.Snapshot, func()) {
	latest := make(chan session.Snapshot, 1)
	unsubscribe := c.store.Subscribe(func(change session.Change) {
		select {
		case <-latest:
		default:
		}
		latest <- change.Snapshot
	})
	return latest, unsubscribe
}

func (c *Client) lastTS() (int64, bool) {
	msgs := c.store.Messages()
	if len(msgs) == 0 {
		return 0, false
	}
	return msgs[len(msgs)-1].TS, true
}

// settle waits for a terminal state reached through a message newer
// than after.
func (c *Client) settle(ctx context.Context, logger *slog.Logger, latest <-chan session.Snapshot, after int64, cancelCh <-chan struct{}) (state.Info, error) {
	timer := c.clk.NewTimer(c.taskTimeout)
	defer timer.Stop()

	for {
		select {
		case snap := <-latest:
			n := len(snap.Messages)
			if n == 0 || snap.Messages[n-1].TS <= after || !snap.State.State.Terminal() {
				continue
			}
			c.engine.CancelPending()
			logger.Info("Task settled", "state", string(snap.State.State))
			return snap.State, nil
		case <-timer.C:
			logger.Warn("Task timed out", "timeout", c.taskTimeout)
			c.abandon()
			return c.store.State(), ErrTaskTimedOut
		case <-cancelCh:
			logger.Info("Task cancelled")
			return c.store.State(), ErrTaskCancelled
		case <-ctx.Done():
			logger.Info("Task abandoned", "error", ctx.Err())
			c.abandon()
			return c.store.State(), ctx.Err()
		case <-c.done:
			return c.store.State(), ErrChannelClosed
		}
	}
}

// abandon stops local ask handling and asks the engine to stop.
func (c *Client) abandon() {
	c.engine.CancelPending()
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.ch.Send(ctx, message.CancelTask()); err != nil {
		c.logger.Debug("Failed to cancel task on engine", "error", err)
	}
}

// Respond answers the most recent pending ask. The response is sent
// under ctx.
func (c *Client) Respond(ctx context.Context, resp approval.Response) error {
	return c.engine.Respond(ctx, resp)
}

// Cancel stops the running task: the engine is told to cancel, pending
// prompts and timers are released and SubmitTask returns
// ErrTaskCancelled.
func (c *Client) Cancel(ctx context.Context) error {
	c.engine.CancelPending()

	c.cancelMu.Lock()
	if c.cancelCh != nil {
		close(c.cancelCh)
		c.cancelCh = nil
	}
	c.cancelMu.Unlock()

	if !c.isReady() {
		return ErrNotReady
	}
	return c.ch.Send(ctx, message.CancelTask())
}

// State returns the derived session state.
func (c *Client) State() state.Info { return c.store.State() }

// Messages returns the current message history.
func (c *Client) Messages() []message.Message { return c.store.Messages() }

// Mode returns the engine's mode label.
func (c *Client) Mode() string { return c.store.Snapshot().Mode }

// Subscribe registers fn for store changes and returns a func removing it.
func (c *Client) Subscribe(fn session.Listener) func() { return c.store.Subscribe(fn) }

// Pending returns the timestamps of asks awaiting an answer.
func (c *Client) Pending() []int64 { return c.engine.Pending() }

// UpdateSettings replaces the engine settings and, in auto mode on a
// ready engine, sends them right away.
func (c *Client) UpdateSettings(ctx context.Context, settings map[string]any) error {
	c.settingsMu.Lock()
	c.settings = maps.Clone(settings)
	c.settingsMu.Unlock()

	if c.policy != approval.PolicyAuto || !c.isReady() || len(settings) == 0 {
		return nil
	}
	return c.ch.Send(ctx, message.UpdateSettings(settings))
}

// SetDecider replaces the approval rules.
func (c *Client) SetDecider(d approval.Decider) { c.engine.SetDecider(d) }

// Close stops ask handling and closes the channel.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.unsubscribe()
		c.engine.Close()
		err = c.ch.Close()
		c.wg.Wait()
	})
	return err
}
