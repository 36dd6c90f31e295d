package message

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestAskCategory(t *testing.T) {
	tests := []struct {
		ask  Ask
		want AskCategory
	}{
		{AskCommand, AskCategoryApproval},
		{AskTool, AskCategoryApproval},
		{AskUseMCPServer, AskCategoryApproval},
		{AskFollowup, AskCategoryQuestion},
		{AskCommandOutput, AskCategoryAcknowledge},
		{AskCompletionResult, AskCategoryCompletion},
		{AskResumeTask, AskCategoryResume},
		{AskResumeCompletedTask, AskCategoryResume},
		{AskAPIReqFailed, AskCategoryFailure},
		{AskMistakeLimitReached, AskCategoryFailure},
		{Ask("something_new"), AskCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.ask), func(t *testing.T) {
			if got := tt.ask.Category(); got != tt.want {
				t.Errorf("Category() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNeedsResponse(t *testing.T) {
	if AskCompletionResult.NeedsResponse() {
		t.Error("completion_result should not need a response")
	}
	if !AskFollowup.NeedsResponse() {
		t.Error("followup should need a response")
	}
}

func TestSubtype(t *testing.T) {
	ask := Message{Type: TypeAsk, Ask: AskCommand}
	if ask.Subtype() != "command" {
		t.Errorf("Subtype() = %q, want %q", ask.Subtype(), "command")
	}
	say := Message{Type: TypeSay, Say: SayText}
	if say.Subtype() != "text" {
		t.Errorf("Subtype() = %q, want %q", say.Subtype(), "text")
	}
}

func TestParseFollowup(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Followup
	}{
		{
			name: "plain text",
			text: "Which file?",
			want: Followup{Question: "Which file?"},
		},
		{
			name: "suggest objects",
			text: `{"question":"Pick one","suggest":[{"answer":"A"},{"answer":"B"}]}`,
			want: Followup{Question: "Pick one", Suggestions: []string{"A", "B"}},
		},
		{
			name: "suggest strings",
			text: `{"question":"Pick one","suggest":["A","B"]}`,
			want: Followup{Question: "Pick one", Suggestions: []string{"A", "B"}},
		},
		{
			name: "options",
			text: `{"question":"Pick one","options":["X"]}`,
			want: Followup{Question: "Pick one", Suggestions: []string{"X"}},
		},
		{
			name: "malformed json",
			text: `{"question":`,
			want: Followup{Question: `{"question":`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFollowup(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseFollowup() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFollowupDefault(t *testing.T) {
	if got := (Followup{Suggestions: []string{"A", "B"}}).Default(); got != "A" {
		t.Errorf("Default() = %q, want %q", got, "A")
	}
	if got := (Followup{}).Default(); got != "" {
		t.Errorf("Default() = %q, want empty", got)
	}
}

func TestParseTool(t *testing.T) {
	tool, ok := ParseTool(`{"tool":"readFile","path":"main.go"}`)
	if !ok {
		t.Fatal("ParseTool() ok = false")
	}
	if tool.Name != "readFile" || tool.Path != "main.go" {
		t.Errorf("ParseTool() = %+v", tool)
	}

	if _, ok := ParseTool("ls -la"); ok {
		t.Error("ParseTool() ok = true for plain text")
	}
	if _, ok := ParseTool(`{"path":"x"}`); ok {
		t.Error("ParseTool() ok = true without a tool name")
	}
}

func TestOutboundWireFormat(t *testing.T) {
	data, err := json.Marshal(Respond(AskResponseYes, ""))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"askResponse","askResponse":"yesButtonClicked"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestInboundDecode(t *testing.T) {
	raw := `{"type":"messageUpdated","message":{"ts":7,"type":"ask","ask":"followup","text":"hi","partial":true}}`
	var in Inbound
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if in.Type != InboundMessageUpdated || in.Message == nil {
		t.Fatalf("Unmarshal() = %+v", in)
	}
	m := *in.Message
	if m.TS != 7 || !m.IsAsk() || m.Ask != AskFollowup || !m.Partial {
		t.Errorf("message = %+v", m)
	}
}
