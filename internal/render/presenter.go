package render

import (
	"fmt"
	"strings"

	"github.com/inercia/tether/internal/message"
	"github.com/inercia/tether/internal/stream"
)

// Headers shown above messages.
const (
	HeaderTask       = "Task"
	HeaderAssistant  = "Assistant"
	HeaderReasoning  = "Thinking"
	HeaderError      = "Error"
	HeaderOutput     = "Output"
	HeaderCompletion = "Completed"
	HeaderFeedback   = "Feedback"
	HeaderTool       = "Tool"
	HeaderBrowser    = "Browser"
	HeaderMCP        = "MCP"
	HeaderWarning    = "Warning"
	HeaderRetry      = "Retrying"
	HeaderQuestion   = "Question"
	HeaderApproval   = "Approval needed"
	HeaderResume     = "Resume"
	HeaderFailure    = "Failed"
	HeaderMessage    = "Message"
)

// Presenter turns message snapshots into renderer calls, writing only
// the text not shown yet.
type Presenter struct {
	r     Renderer
	recon *stream.Reconstructor

	// open is the ts whose streamed text is currently on screen.
	open    int64
	hasOpen bool
}

// NewPresenter returns a Presenter writing to r.
func NewPresenter(r Renderer) *Presenter {
	return &Presenter{r: r, recon: stream.New()}
}

// Present renders the new part of m.
func (p *Presenter) Present(m message.Message) {
	header, ok := headerFor(m)
	if !ok {
		return
	}
	// Structured payloads are only readable once complete.
	if structured(m) && m.Partial {
		return
	}

	for _, e := range p.recon.OnSnapshot(m.TS, m.Text, m.Partial) {
		switch e.Kind {
		case stream.Init:
			p.closeOpen()
			if e.Complete {
				body := bodyFor(m)
				if body == "" && m.IsAsk() && m.Ask == message.AskCompletionResult {
					continue
				}
				p.r.WriteLine(header, body)
				continue
			}
			p.r.WriteLine(header, "")
			p.r.Write(e.Text)
			p.open, p.hasOpen = e.TS, true
		case stream.Delta:
			if !p.hasOpen || p.open != e.TS {
				p.closeOpen()
				p.r.WriteLine(header+" (continued)", "")
				p.open, p.hasOpen = e.TS, true
			}
			p.r.Write(e.Text)
		case stream.Finish:
			if p.hasOpen && p.open == e.TS {
				p.closeOpen()
			}
		}
	}
}

// Reset forgets what was shown. Used when a new task starts.
func (p *Presenter) Reset() {
	p.closeOpen()
	p.recon.Reset()
}

func (p *Presenter) closeOpen() {
	if p.hasOpen {
		p.r.Write("\n")
		p.hasOpen = false
	}
}

func structured(m message.Message) bool {
	if m.IsAsk() {
		return m.Ask == message.AskFollowup || m.Ask == message.AskTool || m.Ask == message.AskUseMCPServer
	}
	return m.Say == message.SayTool
}

// headerFor returns the header of m, or false when m is not shown.
func headerFor(m message.Message) (string, bool) {
	if m.IsAsk() {
		switch m.Ask {
		case message.AskFollowup:
			return HeaderQuestion, true
		case message.AskCommand, message.AskTool, message.AskUseMCPServer,
			message.AskBrowserActionLaunch, message.AskAutoApprovalMaxReqReached:
			return HeaderApproval, true
		case message.AskCommandOutput:
			return HeaderOutput, true
		case message.AskCompletionResult:
			return HeaderCompletion, true
		case message.AskResumeTask, message.AskResumeCompletedTask:
			return HeaderResume, true
		case message.AskAPIReqFailed, message.AskMistakeLimitReached:
			return HeaderFailure, true
		default:
			return HeaderMessage, true
		}
	}

	switch m.Say {
	case message.SayTask:
		return HeaderTask, true
	case message.SayText:
		return HeaderAssistant, true
	case message.SayReasoning:
		return HeaderReasoning, true
	case message.SayError, message.SayDiffError:
		return HeaderError, true
	case message.SayCommandOutput:
		return HeaderOutput, true
	case message.SayCompletionResult:
		return HeaderCompletion, true
	case message.SayUserFeedback:
		return HeaderFeedback, true
	case message.SayTool:
		return HeaderTool, true
	case message.SayBrowserAction:
		return HeaderBrowser, true
	case message.SayMCPServerResponse:
		return HeaderMCP, true
	case message.SayShellIntegrationWarning:
		return HeaderWarning, true
	case message.SayAPIReqRetried:
		return HeaderRetry, true
	case message.SayAPIReqStarted, message.SayAPIReqFinished, message.SayCheckpointSaved:
		return "", false
	default:
		return HeaderMessage, true
	}
}

// bodyFor formats the complete text of m.
func bodyFor(m message.Message) string {
	if m.IsAsk() && m.Ask == message.AskFollowup {
		f := message.ParseFollowup(m.Text)
		var b strings.Builder
		b.WriteString(f.Question)
		for i, s := range f.Suggestions {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, s)
		}
		return b.String()
	}
	if m.IsAsk() && m.Ask == message.AskCommand {
		return "$ " + m.Text
	}
	if tool, ok := message.ParseTool(m.Text); ok {
		if tool.Path != "" {
			return tool.Name + " " + tool.Path
		}
		return tool.Name
	}
	return m.Text
}
