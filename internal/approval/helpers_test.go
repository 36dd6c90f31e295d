package approval

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/inercia/tether/internal/message"
)

type recordingSender struct {
	mu     sync.Mutex
	sent   []message.Outbound
	notify chan message.Outbound
}

func newRecordingSender() *recordingSender {
	return &recordingSender{notify: make(chan message.Outbound, 16)}
}

func (s *recordingSender) Send(_ context.Context, msg message.Outbound) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.notify <- msg
	return nil
}

func (s *recordingSender) all() []message.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Outbound(nil), s.sent...)
}

func (s *recordingSender) wait(t *testing.T) message.Outbound {
	t.Helper()
	select {
	case msg := <-s.notify:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an outbound message")
		return message.Outbound{}
	}
}

// blockingSender never delivers: Send waits for ctx.
type blockingSender struct{}

func (blockingSender) Send(ctx context.Context, _ message.Outbound) error {
	<-ctx.Done()
	return ctx.Err()
}

// scriptedPrompter answers prompts with lines pushed on its lines channel.
// Closing lines makes every later Ask fail with io.EOF.
type scriptedPrompter struct {
	lines   chan string
	prompts chan string
}

func newScriptedPrompter() *scriptedPrompter {
	return &scriptedPrompter{
		lines:   make(chan string, 16),
		prompts: make(chan string, 16),
	}
}

func (p *scriptedPrompter) Ask(ctx context.Context, prompt string) (string, error) {
	select {
	case p.prompts <- prompt:
	default:
	}
	select {
	case line, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *scriptedPrompter) waitPrompt(t *testing.T) string {
	t.Helper()
	select {
	case prompt := <-p.prompts:
		return prompt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a prompt")
		return ""
	}
}

func askMsg(ts int64, a message.Ask, text string) message.Message {
	return message.Message{TS: ts, Type: message.TypeAsk, Ask: a, Text: text}
}

type decideFunc func(message.Message) (Response, bool)

func (f decideFunc) Decide(m message.Message) (Response, bool) { return f(m) }
