// Package input reads human answers line by line.
//
// Both prompters own the single reader of their input source. A line
// typed while nobody is asking is handed to the next Ask, and an Ask
// cancelled through its context never swallows a line.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrInterrupted is returned when the user interrupts input (Ctrl-C).
var ErrInterrupted = errors.New("input interrupted")

// Lines prompts on a writer and reads answers from a reader.
type Lines struct {
	r   io.Reader
	out io.Writer

	startOnce sync.Once
	lines     chan string
	err       error
}

// NewLines returns a prompter reading from r. Prompts are written to
// out, which may be nil.
func NewLines(r io.Reader, out io.Writer) *Lines {
	return &Lines{r: r, out: out, lines: make(chan string)}
}

func (l *Lines) start() {
	go func() {
		defer close(l.lines)
		scanner := bufio.NewScanner(l.r)
		for scanner.Scan() {
			l.lines <- scanner.Text()
		}
		l.err = scanner.Err()
	}()
}

// Ask writes prompt and waits for the next line.
func (l *Lines) Ask(ctx context.Context, prompt string) (string, error) {
	l.startOnce.Do(l.start)
	if l.out != nil && prompt != "" {
		fmt.Fprint(l.out, prompt)
	}

	select {
	case line, ok := <-l.lines:
		if !ok {
			// l.err is written before lines is closed.
			if l.err != nil {
				return "", l.err
			}
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
