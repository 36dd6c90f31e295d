package acp

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestLineFilter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "passes JSON lines",
			input: "{\"jsonrpc\":\"2.0\",\"method\":\"test\"}\n{\"jsonrpc\":\"2.0\",\"result\":null}\n",
			want:  "{\"jsonrpc\":\"2.0\",\"method\":\"test\"}\n{\"jsonrpc\":\"2.0\",\"result\":null}\n",
		},
		{
			name:  "drops terminal UI",
			input: "{\"id\":1}\n ╭────╮\n │ Oops │\n ╰────╯\n{\"id\":2}\n",
			want:  "{\"id\":1}\n{\"id\":2}\n",
		},
		{
			name:  "drops ANSI escapes and blank lines",
			input: "\x1b[?1004h\x1b[>1u\n\n   \n{\"id\":1}\n",
			want:  "{\"id\":1}\n",
		},
		{
			name:  "last line without newline",
			input: "{\"id\":1}\n{\"id\":2}",
			want:  "{\"id\":1}\n{\"id\":2}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newLineFilter(strings.NewReader(tt.input), nil))
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLineFilter_SmallReads(t *testing.T) {
	input := "noise\n{\"jsonrpc\":\"2.0\",\"method\":\"session/update\"}\n"
	got, err := io.ReadAll(iotest.OneByteReader(newLineFilter(strings.NewReader(input), nil)))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if want := "{\"jsonrpc\":\"2.0\",\"method\":\"session/update\"}\n"; string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
