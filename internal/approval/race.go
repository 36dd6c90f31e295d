package approval

import (
	"context"
	"time"

	"github.com/inercia/tether/internal/clock"
)

// AskWithTimeout races one prompt against a timer. The first to finish
// wins and the other side is cancelled: the timer is stopped, and the
// prompt's context is cancelled and its goroutine awaited before
// returning, so no listener outlives the call.
//
// It returns the typed line, or def with defaulted set when the timer
// expired first or the prompter failed. An error is returned only when
// ctx is done.
func AskWithTimeout(ctx context.Context, p Prompter, clk clock.Clock, prompt string, d time.Duration, def string) (answer string, defaulted bool, err error) {
	inputCtx, cancel := context.WithCancel(ctx)

	type result struct {
		line string
		err  error
	}
	results := make(chan result, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		line, err := p.Ask(inputCtx, prompt)
		results <- result{line: line, err: err}
	}()

	timer := clk.NewTimer(d)
	defer func() {
		timer.Stop()
		cancel()
		<-done
	}()

	select {
	case r := <-results:
		if r.err != nil {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			return def, true, nil
		}
		return r.line, false, nil
	case <-timer.C:
		return def, true, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}
