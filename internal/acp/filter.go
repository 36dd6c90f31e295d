package acp

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
)

// lineFilter passes through only the lines of an agent's stdout that may
// be JSON-RPC messages (they start with '{'). Agents that crash tend to
// print terminal UI on the same stream.
type lineFilter struct {
	r       *bufio.Reader
	logger  *slog.Logger
	pending []byte
}

func newLineFilter(r io.Reader, logger *slog.Logger) *lineFilter {
	return &lineFilter{r: bufio.NewReaderSize(r, 64*1024), logger: logger}
}

func (f *lineFilter) Read(p []byte) (int, error) {
	for len(f.pending) == 0 {
		line, err := f.r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if trimmed[0] == '{' {
				f.pending = append(trimmed, '\n')
			} else if f.logger != nil {
				f.logger.Debug("Filtered non-JSON line from agent stdout", "line", shorten(string(trimmed)), "length", len(trimmed))
			}
		}
		if err != nil {
			if len(f.pending) > 0 {
				break
			}
			return 0, err
		}
	}

	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func shorten(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:100] + "..." + s[len(s)-50:]
}
