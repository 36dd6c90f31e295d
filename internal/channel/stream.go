package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/inercia/tether/internal/logging"
	"github.com/inercia/tether/internal/message"
)

const (
	initialBufSize = 1024 * 1024
	maxBufSize     = 10 * 1024 * 1024
)

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithReadyOnStart makes the stream ready immediately, for engines that
// never announce readiness.
func WithReadyOnStart() StreamOption {
	return func(s *Stream) { s.readyOnStart = true }
}

// WithLogger sets the stream's logger.
func WithLogger(logger *slog.Logger) StreamOption {
	return func(s *Stream) { s.logger = logger }
}

// Stream exchanges newline-delimited JSON envelopes over a reader and a
// writer. Lines that do not start with '{' are discarded, so an engine
// may print diagnostics on the same stream.
//
// The stream becomes ready on a {"type":"ready"} envelope or on the
// first state envelope, whichever comes first.
type Stream struct {
	r      io.Reader
	w      io.Writer
	logger *slog.Logger

	writeMu sync.Mutex

	readyMu      sync.Mutex
	ready        *readiness
	readyOnStart bool

	inbound   chan message.Inbound
	done      chan struct{}
	closeOnce sync.Once
}

// NewStream starts reading envelopes from r. Commands are written to w.
func NewStream(r io.Reader, w io.Writer, opts ...StreamOption) *Stream {
	s := &Stream{
		r:       r,
		w:       w,
		ready:   newReadiness(),
		inbound: make(chan message.Inbound, 64),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Channel()
	}
	if s.readyOnStart {
		s.markReady()
	}
	go s.readLoop()
	return s
}

func (s *Stream) Ready() <-chan struct{} { return s.ready.ch }

func (s *Stream) Inbound() <-chan message.Inbound { return s.inbound }

func (s *Stream) markReady() {
	s.readyMu.Lock()
	s.ready.mark()
	s.readyMu.Unlock()
}

func (s *Stream) readLoop() {
	defer close(s.inbound)

	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, initialBufSize), maxBufSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			s.logger.Debug("Filtered non-JSON line from engine", "line", truncate(string(line)), "length", len(line))
			continue
		}

		env, err := Decode(line)
		if err != nil {
			s.logger.Warn("Ignoring malformed envelope", "error", err)
			continue
		}

		switch env.Type {
		case message.InboundReady:
			s.markReady()
			continue
		case message.InboundState:
			s.markReady()
		}

		select {
		case s.inbound <- env:
		case <-s.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("Engine stream ended with error", "error", err)
	}
}

// Send writes msg as one JSON line.
func (s *Stream) Send(ctx context.Context, msg message.Outbound) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return ErrClosed
		}
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// Close stops delivering envelopes. The underlying reader and writer
// are owned by the caller.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
