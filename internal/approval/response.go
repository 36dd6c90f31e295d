package approval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/inercia/tether/internal/message"
)

// ResponseKind is the kind of answer given to an ask.
type ResponseKind int

const (
	// Approve accepts the action the ask proposes.
	Approve ResponseKind = iota
	// Reject declines the action the ask proposes.
	Reject
	// Reply answers with free text.
	Reply
)

func (k ResponseKind) String() string {
	switch k {
	case Approve:
		return "approve"
	case Reject:
		return "reject"
	case Reply:
		return "reply"
	default:
		return "unknown"
	}
}

// Response is an answer to an ask.
type Response struct {
	Kind ResponseKind
	Text string
}

// Approved returns an approve response.
func Approved() Response { return Response{Kind: Approve} }

// Rejected returns a reject response.
func Rejected() Response { return Response{Kind: Reject} }

// Replied returns a free-text response.
func Replied(text string) Response { return Response{Kind: Reply, Text: text} }

// Outbound returns the askResponse command carrying r.
func (r Response) Outbound() message.Outbound {
	switch r.Kind {
	case Approve:
		return message.Respond(message.AskResponseYes, r.Text)
	case Reject:
		return message.Respond(message.AskResponseNo, r.Text)
	default:
		return message.Respond(message.AskResponseMessage, r.Text)
	}
}

// ParseResponseKind parses "approve", "reject" or "reply".
func ParseResponseKind(s string) (ResponseKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "yes", "y":
		return Approve, nil
	case "reject", "no", "n":
		return Reject, nil
	case "reply", "text", "message":
		return Reply, nil
	default:
		return 0, fmt.Errorf("unknown response kind %q", s)
	}
}

// parseReply maps a line typed by a human to a response for ask m.
// It returns false when the line should be asked again.
func parseReply(m message.Message, line string) (Response, bool) {
	trimmed := strings.TrimSpace(line)

	if m.Ask == message.AskFollowup {
		if trimmed == "" {
			return Response{}, false
		}
		return Replied(selectSuggestion(message.ParseFollowup(m.Text), trimmed)), true
	}

	switch strings.ToLower(trimmed) {
	case "":
		return Response{}, false
	case "y", "yes":
		return Approved(), true
	case "n", "no":
		return Rejected(), true
	default:
		return Replied(trimmed), true
	}
}

// selectSuggestion resolves a numeric selection to the matching
// suggestion. Any other input is returned verbatim.
func selectSuggestion(f message.Followup, input string) string {
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(f.Suggestions) {
		return input
	}
	return f.Suggestions[n-1]
}

// fallback is the response used when human input is unavailable.
func fallback(m message.Message) Response {
	if m.Ask == message.AskFollowup {
		return Replied(message.ParseFollowup(m.Text).Default())
	}
	return Rejected()
}

func promptFor(m message.Message) string {
	const choices = "[y/n or reply]"
	switch m.Ask {
	case message.AskFollowup:
		f := message.ParseFollowup(m.Text)
		if len(f.Suggestions) > 0 {
			return fmt.Sprintf("Answer [1-%d or text]: ", len(f.Suggestions))
		}
		return "Answer: "
	case message.AskCommand:
		return "Run command? " + choices + ": "
	case message.AskTool:
		return "Allow tool use? " + choices + ": "
	case message.AskUseMCPServer:
		return "Allow MCP server use? " + choices + ": "
	case message.AskBrowserActionLaunch:
		return "Launch browser? " + choices + ": "
	case message.AskAutoApprovalMaxReqReached:
		return "Continue past the request limit? " + choices + ": "
	case message.AskAPIReqFailed:
		return "Retry the request? " + choices + ": "
	case message.AskMistakeLimitReached:
		return "Continue? " + choices + ": "
	case message.AskResumeTask, message.AskResumeCompletedTask:
		return "Resume the task? " + choices + ": "
	default:
		return fmt.Sprintf("Respond to %s %s: ", m.Subtype(), choices)
	}
}
