// Package render shows agent messages to a human.
package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Renderer is the sink agent output is written to.
type Renderer interface {
	// Write appends raw streamed text.
	Write(text string)
	// WriteLine writes a header and, when text is not empty, a body.
	WriteLine(header, text string)
}

var (
	defaultHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))

	headerStyles = map[string]lipgloss.Style{
		HeaderError:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		HeaderQuestion:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		HeaderApproval:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		HeaderCompletion: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		HeaderReasoning:  lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("243")),
		HeaderOutput:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
)

// Terminal renders to a writer, styling headers with lipgloss.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminal returns a Terminal writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) Write(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.w, text)
}

func (t *Terminal) WriteLine(header, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	style, ok := headerStyles[header]
	if !ok {
		style = defaultHeaderStyle
	}
	fmt.Fprintln(t.w, style.Render(header))
	if text != "" {
		fmt.Fprintln(t.w, text)
	}
}

// Silent discards everything. It is the renderer for quiet mode.
type Silent struct{}

func (Silent) Write(string)             {}
func (Silent) WriteLine(string, string) {}
