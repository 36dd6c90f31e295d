package approval

import (
	"testing"

	"github.com/inercia/tether/internal/message"
)

func TestResponseOutbound(t *testing.T) {
	tests := []struct {
		resp Response
		want message.Outbound
	}{
		{Approved(), message.Respond(message.AskResponseYes, "")},
		{Rejected(), message.Respond(message.AskResponseNo, "")},
		{Replied("hi"), message.Respond(message.AskResponseMessage, "hi")},
	}
	for _, tt := range tests {
		t.Run(tt.resp.Kind.String(), func(t *testing.T) {
			got := tt.resp.Outbound()
			if got.Type != tt.want.Type || got.AskResponse != tt.want.AskResponse || got.Text != tt.want.Text {
				t.Errorf("Outbound() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseResponseKind(t *testing.T) {
	tests := map[string]ResponseKind{
		"approve": Approve,
		"Y":       Approve,
		"reject":  Reject,
		"no":      Reject,
		"reply":   Reply,
	}
	for in, want := range tests {
		got, err := ParseResponseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseResponseKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseResponseKind("maybe"); err == nil {
		t.Error("ParseResponseKind(maybe) error = nil")
	}
}

func TestPromptFor(t *testing.T) {
	got := promptFor(askMsg(1, message.AskFollowup, followupAB))
	if got != "Answer [1-2 or text]: " {
		t.Errorf("promptFor(followup) = %q", got)
	}
	if got := promptFor(askMsg(1, message.Ask("novel"), "")); got == "" {
		t.Error("promptFor(unknown) is empty")
	}
}
