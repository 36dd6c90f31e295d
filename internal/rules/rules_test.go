package rules

import (
	"strings"
	"testing"

	"github.com/inercia/tether/internal/approval"
	"github.com/inercia/tether/internal/message"
)

func ask(sub message.Ask, text string) message.Message {
	return message.Message{TS: 1, Type: message.TypeAsk, Ask: sub, Text: text}
}

func TestDecide(t *testing.T) {
	set, err := Compile([]Rule{
		{Name: "no-rm", When: `subtype == "command" && text.startsWith("rm ")`, Decision: Reject},
		{Name: "tests", When: `subtype == "command" && text.startsWith("go test")`, Decision: Approve},
		{Name: "docs", When: `tool == "editedExistingFile" && path.endsWith(".md")`, Decision: "APPROVE"},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", set.Len())
	}

	tests := []struct {
		name    string
		msg     message.Message
		want    approval.Response
		matched bool
	}{
		{"rejected command", ask(message.AskCommand, "rm -rf /tmp/x"), approval.Rejected(), true},
		{"approved command", ask(message.AskCommand, "go test ./..."), approval.Approved(), true},
		{"approved tool", ask(message.AskTool, `{"tool":"editedExistingFile","path":"README.md"}`), approval.Approved(), true},
		{"tool on other path", ask(message.AskTool, `{"tool":"editedExistingFile","path":"main.go"}`), approval.Response{}, false},
		{"unmatched command", ask(message.AskCommand, "make"), approval.Response{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := set.Decide(tt.msg)
			if ok != tt.matched {
				t.Fatalf("Decide() matched = %v, want %v", ok, tt.matched)
			}
			if got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFirstMatchWins(t *testing.T) {
	set, err := Compile([]Rule{
		{When: `subtype == "command"`, Decision: Approve},
		{When: `true`, Decision: Reject},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	got, ok := set.Decide(ask(message.AskCommand, "ls"))
	if !ok || got != approval.Approved() {
		t.Errorf("Decide() = %+v, %v; want approve", got, ok)
	}
	got, ok = set.Decide(ask(message.AskBrowserActionLaunch, "https://example.com"))
	if !ok || got != approval.Rejected() {
		t.Errorf("Decide() = %+v, %v; want reject", got, ok)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr string
	}{
		{"unknown decision", Rule{Name: "x", When: "true", Decision: "maybe"}, "unknown decision"},
		{"empty expression", Rule{Name: "x", Decision: Approve}, "empty expression"},
		{"syntax error", Rule{Name: "x", When: `subtype ==`, Decision: Approve}, "rule x"},
		{"unknown variable", Rule{Name: "x", When: `command == "ls"`, Decision: Approve}, "rule x"},
		{"not boolean", Rule{Name: "x", When: `text`, Decision: Approve}, "must be boolean"},
		{"unnamed rule", Rule{When: "1", Decision: Approve}, "rule #1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]Rule{tt.rule})
			if err == nil {
				t.Fatal("Compile() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Compile() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestEvaluationErrorSkipsRule(t *testing.T) {
	set, err := Compile([]Rule{
		{Name: "bad-index", When: `text.split(" ")[3] == "x"`, Decision: Reject},
		{Name: "fallback", When: `subtype == "command"`, Decision: Approve},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	got, ok := set.Decide(ask(message.AskCommand, "ls"))
	if !ok || got != approval.Approved() {
		t.Errorf("Decide() = %+v, %v; want approve from fallback", got, ok)
	}
}

func TestNilSet(t *testing.T) {
	var set *Set
	if _, ok := set.Decide(ask(message.AskCommand, "ls")); ok {
		t.Error("nil set matched")
	}
	if set.Len() != 0 {
		t.Errorf("Len() = %d, want 0", set.Len())
	}
}
