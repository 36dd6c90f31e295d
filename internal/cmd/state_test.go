package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/inercia/tether/internal/message"
	"github.com/inercia/tether/internal/state"
)

const recording = `engine starting up
{"type":"ready"}
{"type":"state","state":{"messages":[{"ts":1,"type":"say","say":"task","text":"Add a README"}],"mode":"code"}}
{"type":"messageUpdated","message":{"ts":2,"type":"say","say":"text","text":"Crea","partial":true}}
{"type":"messageUpdated","message":{"ts":2,"type":"say","say":"text","text":"Creating it"}}
{"type":"messageUpdated","message":{"ts":3,"type":"ask","ask":"tool","text":"{\"tool\":\"newFileCreated\",\"path\":\"README.md\"}"}}
{"type":"messageUpdated","message":
{"type":"messageUpdated","message":{"ts":4,"type":"ask","ask":"completion_result","text":""}}
`

func TestReplay(t *testing.T) {
	var out bytes.Buffer
	if err := replay(strings.NewReader(recording), &out, true); err != nil {
		t.Fatalf("replay() error = %v", err)
	}

	var got []state.State
	dec := json.NewDecoder(&out)
	for dec.More() {
		var info state.Info
		if err := dec.Decode(&info); err != nil {
			t.Fatalf("decode replay output: %v", err)
		}
		got = append(got, info.State)
	}

	want := []state.State{state.Running, state.Streaming, state.Running, state.WaitingForInput, state.Idle}
	if len(got) != len(want) {
		t.Fatalf("replay() printed %d states, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("state[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestReplayText(t *testing.T) {
	var out bytes.Buffer
	if err := replay(strings.NewReader(recording), &out, false); err != nil {
		t.Fatalf("replay() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("replay() printed %d lines, want 5:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[4], "IDLE") || !strings.HasPrefix(strings.TrimSpace(lines[4]), "8") {
		t.Errorf("last line = %q, want line 8 in IDLE", lines[4])
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		info state.Info
		want string
	}{
		{state.Info{State: state.Idle, RequiredAction: state.ActionStartOrFeedback, Description: "Task completed"}, "✅ Task completed"},
		{state.Info{State: state.Idle, RequiredAction: state.ActionRetryOrAbort, Description: "The API request failed"}, "❌ The API request failed"},
		{state.Info{State: state.Resumable, CurrentAsk: message.AskResumeTask, Description: "resume"}, "⏸️  resume"},
		{state.Info{State: state.Running, Description: "busy"}, "RUNNING: busy"},
	}
	for _, tt := range tests {
		if got := outcome(tt.info); got != tt.want {
			t.Errorf("outcome(%s) = %q, want %q", tt.info.State, got, tt.want)
		}
	}
}

func TestPrintState(t *testing.T) {
	var out bytes.Buffer
	printState(&out, state.Info{
		State:          state.WaitingForInput,
		CurrentAsk:     message.AskTool,
		AskTS:          3,
		RequiredAction: state.ActionApproveOrReject,
		Description:    "The agent wants to use a tool",
	}, "code")

	for _, want := range []string{"WAITING_FOR_INPUT", "approve_or_reject", "tool (ts 3)", "Mode:        code"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("printState() output missing %q:\n%s", want, out.String())
		}
	}
}
