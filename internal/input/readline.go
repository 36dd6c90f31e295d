package input

import (
	"context"
	"errors"
	"sync"

	"github.com/reeflective/readline"
)

// Readline prompts through an interactive line editor with history.
type Readline struct {
	shell *readline.Shell

	mu       sync.Mutex
	inFlight bool
	results  chan result
}

type result struct {
	line string
	err  error
}

// NewReadline returns a prompter backed by a readline shell. complete,
// when not nil, provides tab completion.
func NewReadline(complete func(line []rune, cursor int) readline.Completions) *Readline {
	shell := readline.NewShell()
	shell.History.Add("default", readline.NewInMemoryHistory())
	if complete != nil {
		shell.Completer = complete
	}
	return &Readline{shell: shell, results: make(chan result, 1)}
}

// Ask shows prompt and waits for a line. The terminal read cannot be
// interrupted, so when ctx ends first the pending read stays in flight
// and its line goes to the next Ask.
func (r *Readline) Ask(ctx context.Context, prompt string) (string, error) {
	r.mu.Lock()
	if !r.inFlight {
		r.inFlight = true
		go r.read(prompt)
	}
	r.mu.Unlock()

	select {
	case res := <-r.results:
		r.mu.Lock()
		r.inFlight = false
		r.mu.Unlock()
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Readline) read(prompt string) {
	r.shell.Prompt.Primary(func() string { return prompt })
	line, err := r.shell.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		err = ErrInterrupted
	}
	r.results <- result{line: line, err: err}
}
