// Package approval tracks the asks an agent engine raises and makes sure
// each one is answered at most once, either by a human, by a rule, or
// by a timed default.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/inercia/tether/internal/clock"
	"github.com/inercia/tether/internal/logging"
	"github.com/inercia/tether/internal/message"
)

// DefaultFollowupTimeout bounds the wait for an answer to a followup
// question when nobody is expected to be watching.
const DefaultFollowupTimeout = 10 * time.Second

const sendTimeout = 30 * time.Second

var (
	// ErrNoPendingAsk is returned by Respond when no ask is waiting.
	ErrNoPendingAsk = errors.New("no pending ask")
	// ErrAlreadyAnswered is returned when an ask was answered before.
	ErrAlreadyAnswered = errors.New("ask already answered")
)

var errResolutionCancelled = errors.New("ask resolution cancelled")

// Policy selects how surfaced asks are resolved.
type Policy string

const (
	// PolicyInteractive blocks every ask on a human answer. Asks that
	// end the task are left to the caller's Respond.
	PolicyInteractive Policy = "interactive"
	// PolicyAuto leaves ordinary asks to the engine's own auto-approval
	// settings and answers followup questions with a timed default.
	PolicyAuto Policy = "auto"
)

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyInteractive, PolicyAuto:
		return Policy(s), nil
	case "":
		return PolicyInteractive, nil
	default:
		return "", fmt.Errorf("unknown approval mode %q (expected %q or %q)", s, PolicyInteractive, PolicyAuto)
	}
}

// Status is the lifecycle of an ask.
type Status int

const (
	Unseen Status = iota
	Surfaced
	Answered
)

func (s Status) String() string {
	switch s {
	case Surfaced:
		return "surfaced"
	case Answered:
		return "answered"
	default:
		return "unseen"
	}
}

// Prompter obtains one line of human input.
type Prompter interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Sender delivers commands to the engine.
type Sender interface {
	Send(ctx context.Context, msg message.Outbound) error
}

// Decider answers approval asks without a human. It returns false when
// it has no opinion.
type Decider interface {
	Decide(m message.Message) (Response, bool)
}

// Config configures an Engine.
type Config struct {
	Policy          Policy
	FollowupTimeout time.Duration
	Prompter        Prompter
	Sender          Sender
	Decider         Decider
	Clock           clock.Clock
	Logger          *slog.Logger
}

// Engine holds the pending-ask set of one session.
type Engine struct {
	policy          Policy
	followupTimeout time.Duration
	prompter        Prompter
	sender          Sender
	clock           clock.Clock
	logger          *slog.Logger

	mu      sync.Mutex
	asks    map[int64]Status
	cancels map[int64]*resolution
	decider Decider

	// promptSlot serializes human prompts.
	promptSlot chan struct{}
	wg         sync.WaitGroup
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Policy == "" {
		cfg.Policy = PolicyInteractive
	}
	if cfg.FollowupTimeout <= 0 {
		cfg.FollowupTimeout = DefaultFollowupTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Approval()
	}
	return &Engine{
		policy:          cfg.Policy,
		followupTimeout: cfg.FollowupTimeout,
		prompter:        cfg.Prompter,
		sender:          cfg.Sender,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		decider:         cfg.Decider,
		asks:            make(map[int64]Status),
		cancels:         make(map[int64]*resolution),
		promptSlot:      make(chan struct{}, 1),
	}
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy { return e.policy }

// SetDecider replaces the rule set consulted for approval asks.
func (e *Engine) SetDecider(d Decider) {
	e.mu.Lock()
	e.decider = d
	e.mu.Unlock()
}

// Observe inspects a message from the engine. The first complete
// sighting of an ask that needs a response surfaces it and starts its
// resolution; any later sighting is ignored.
func (e *Engine) Observe(m message.Message) {
	if !m.IsAsk() || m.Partial {
		return
	}
	if !m.Ask.NeedsResponse() {
		e.logger.Debug("Ask needs no response", "ts", m.TS, "ask", m.Ask)
		return
	}

	e.mu.Lock()
	if _, seen := e.asks[m.TS]; seen {
		e.mu.Unlock()
		return
	}
	e.asks[m.TS] = Surfaced
	decider := e.decider
	e.mu.Unlock()

	category := m.Ask.Category()
	e.logger.Debug("Ask surfaced", "ts", m.TS, "ask", m.Ask, "category", category.String())

	if category == message.AskCategoryAcknowledge {
		e.resolve(m.TS, func(context.Context) (Response, bool) { return Approved(), true })
		return
	}

	if category == message.AskCategoryApproval && decider != nil {
		if resp, ok := decider.Decide(m); ok {
			e.logger.Info("Ask decided by rule", "ts", m.TS, "ask", m.Ask, "response", resp.Kind.String())
			e.resolve(m.TS, func(context.Context) (Response, bool) { return resp, true })
			return
		}
	}

	switch e.policy {
	case PolicyAuto:
		if category != message.AskCategoryQuestion {
			e.logger.Debug("Ask left to engine auto-approval", "ts", m.TS, "ask", m.Ask)
			return
		}
		e.resolve(m.TS, func(ctx context.Context) (Response, bool) { return e.timedAnswer(ctx, m) })
	default:
		if category.Settles() {
			e.logger.Debug("Ask left to the caller", "ts", m.TS, "ask", m.Ask)
			return
		}
		e.resolve(m.TS, func(ctx context.Context) (Response, bool) { return e.humanAnswer(ctx, m) })
	}
}

type resolution struct {
	cancel context.CancelFunc
}

// resolve runs fn on its own goroutine and submits its response. The
// resolution can be cancelled through the ask's entry in cancels.
func (e *Engine) resolve(ts int64, fn func(ctx context.Context) (Response, bool)) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &resolution{cancel: cancel}

	e.mu.Lock()
	e.cancels[ts] = r
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			if e.cancels[ts] == r {
				delete(e.cancels, ts)
			}
			e.mu.Unlock()
			cancel()
		}()

		resp, ok := fn(ctx)
		if !ok {
			return
		}
		if err := e.answer(ctx, ts, resp); err != nil {
			if !errors.Is(err, errResolutionCancelled) && !errors.Is(err, ErrAlreadyAnswered) {
				e.logger.Error("Failed to send ask response", "ts", ts, "error", err)
			}
		}
	}()
}

// answer moves ts from surfaced to answered and sends resp. This is the
// single place a response leaves the engine, which keeps it at most
// once per ask.
func (e *Engine) answer(ctx context.Context, ts int64, resp Response) error {
	e.mu.Lock()
	if ctx.Err() != nil {
		e.mu.Unlock()
		return errResolutionCancelled
	}
	if e.asks[ts] != Surfaced {
		e.mu.Unlock()
		e.logger.Debug("Dropping response for ask not awaiting one", "ts", ts)
		return ErrAlreadyAnswered
	}
	e.asks[ts] = Answered
	e.mu.Unlock()

	// Answered asks are always sent.
	return e.send(context.WithoutCancel(ctx), ts, resp)
}

func (e *Engine) send(ctx context.Context, ts int64, resp Response) error {
	e.logger.Info("Answering ask", "ts", ts, "response", resp.Kind.String())
	if e.sender == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return e.sender.Send(ctx, resp.Outbound())
}

// Respond answers the most recent surfaced ask on behalf of the caller,
// cancelling any prompt or timer still resolving it. The response is
// sent under ctx.
func (e *Engine) Respond(ctx context.Context, resp Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	ts, ok := e.latestSurfacedLocked()
	if !ok {
		e.mu.Unlock()
		e.logger.Warn("Response with no pending ask", "response", resp.Kind.String())
		return ErrNoPendingAsk
	}
	if r := e.cancels[ts]; r != nil {
		r.cancel()
	}
	e.asks[ts] = Answered
	e.mu.Unlock()

	return e.send(ctx, ts, resp)
}

func (e *Engine) latestSurfacedLocked() (int64, bool) {
	var latest int64
	found := false
	for ts, st := range e.asks {
		if st == Surfaced && (!found || ts > latest) {
			latest, found = ts, true
		}
	}
	return latest, found
}

// Status returns the lifecycle status of ask ts.
func (e *Engine) Status(ts int64) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.asks[ts]
}

// Pending returns the surfaced, unanswered asks in ts order.
func (e *Engine) Pending() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []int64
	for ts, st := range e.asks {
		if st == Surfaced {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CancelPending stops every in-flight resolution without sending a
// response. The asks stay surfaced.
func (e *Engine) CancelPending() {
	e.mu.Lock()
	for ts, r := range e.cancels {
		r.cancel()
		delete(e.cancels, ts)
	}
	e.mu.Unlock()
}

// Reset cancels in-flight resolutions and forgets every ask.
func (e *Engine) Reset() {
	e.mu.Lock()
	for ts, r := range e.cancels {
		r.cancel()
		delete(e.cancels, ts)
	}
	e.asks = make(map[int64]Status)
	e.mu.Unlock()
}

// Close cancels in-flight resolutions and waits for them to exit.
func (e *Engine) Close() {
	e.CancelPending()
	e.wg.Wait()
}

// humanAnswer blocks on the prompter until it yields a usable line.
func (e *Engine) humanAnswer(ctx context.Context, m message.Message) (Response, bool) {
	if e.prompter == nil {
		e.logger.Warn("No input available, using default", "ts", m.TS, "ask", m.Ask)
		return fallback(m), true
	}

	select {
	case e.promptSlot <- struct{}{}:
		defer func() { <-e.promptSlot }()
	case <-ctx.Done():
		return Response{}, false
	}

	prompt := promptFor(m)
	for {
		line, err := e.prompter.Ask(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, false
			}
			e.logger.Warn("Input failed, using default", "ts", m.TS, "ask", m.Ask, "error", err)
			return fallback(m), true
		}
		if resp, ok := parseReply(m, line); ok {
			return resp, true
		}
	}
}

// timedAnswer answers a followup with the typed line or, when nothing
// arrives in time, with its default suggestion.
func (e *Engine) timedAnswer(ctx context.Context, m message.Message) (Response, bool) {
	f := message.ParseFollowup(m.Text)
	def := f.Default()

	if e.prompter == nil {
		return Replied(def), true
	}

	select {
	case e.promptSlot <- struct{}{}:
		defer func() { <-e.promptSlot }()
	case <-ctx.Done():
		return Response{}, false
	}

	prompt := fmt.Sprintf("%s(default %q in %s) ", promptFor(m), def, e.followupTimeout)
	line, defaulted, err := AskWithTimeout(ctx, e.prompter, e.clock, prompt, e.followupTimeout, def)
	if err != nil {
		return Response{}, false
	}
	if defaulted {
		e.logger.Info("Followup answered with default", "ts", m.TS, "answer", def)
		return Replied(def), true
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return Replied(def), true
	}
	return Replied(selectSuggestion(f, line)), true
}
