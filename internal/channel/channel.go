// Package channel provides transports that carry envelopes between the
// session layer and an agent engine.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inercia/tether/internal/message"
)

// ErrClosed is returned when sending on a closed channel.
var ErrClosed = errors.New("engine channel closed")

// Channel is an ordered, bidirectional link to an engine.
type Channel interface {
	// Ready is closed once the engine accepts commands.
	Ready() <-chan struct{}
	// Inbound delivers envelopes in arrival order. It is closed when
	// the engine goes away.
	Inbound() <-chan message.Inbound
	// Send delivers a command to the engine.
	Send(ctx context.Context, msg message.Outbound) error
	// Close releases the transport.
	Close() error
}

// DecodeError reports an inbound line that is not a valid envelope.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope %q: %v", truncate(e.Line), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses one JSON envelope.
func Decode(data []byte) (message.Inbound, error) {
	var env message.Inbound
	if err := json.Unmarshal(bytes.TrimSpace(data), &env); err != nil {
		return message.Inbound{}, &DecodeError{Line: string(data), Err: err}
	}
	if env.Type == "" {
		return message.Inbound{}, &DecodeError{Line: string(data), Err: errors.New("missing type")}
	}
	return env, nil
}

// truncate shortens long lines for logs.
func truncate(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:100] + "..." + s[len(s)-50:]
}

// readiness closes a channel once.
type readiness struct {
	ch   chan struct{}
	done bool
}

func newReadiness() *readiness { return &readiness{ch: make(chan struct{})} }

// mark closes the ready channel. Callers serialize access.
func (r *readiness) mark() {
	if !r.done {
		r.done = true
		close(r.ch)
	}
}
