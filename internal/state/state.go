// Package state derives the session state from the engine's message
// history. Derivation is a pure function of the message list: no state
// is kept between calls.
package state

import (
	"fmt"

	"github.com/inercia/tether/internal/message"
)

// State is the coarse session state.
type State string

const (
	NoTask          State = "NO_TASK"
	Running         State = "RUNNING"
	Streaming       State = "STREAMING"
	WaitingForInput State = "WAITING_FOR_INPUT"
	Idle            State = "IDLE"
	Resumable       State = "RESUMABLE"
)

// Terminal reports whether the task has stopped making progress on its
// own: it finished, failed, or can only be resumed.
func (s State) Terminal() bool {
	return s == Idle || s == Resumable
}

// Action is what the consumer should do next.
type Action string

const (
	ActionStartTask       Action = "start_task"
	ActionWait            Action = "wait"
	ActionAnswerQuestion  Action = "answer_question"
	ActionApproveOrReject Action = "approve_or_reject"
	ActionAcknowledge     Action = "acknowledge"
	ActionStartOrFeedback Action = "start_task_or_feedback"
	ActionRetryOrAbort    Action = "retry_or_abort"
	ActionProvideGuidance Action = "provide_guidance"
	ActionResumeOrAbort   Action = "resume_or_abort"
)

// Info is the derived session state.
type Info struct {
	State             State       `json:"state"`
	IsWaitingForInput bool        `json:"isWaitingForInput"`
	IsRunning         bool        `json:"isRunning"`
	IsStreaming       bool        `json:"isStreaming"`
	CurrentAsk        message.Ask `json:"currentAsk,omitempty"`
	// AskTS is the ts of CurrentAsk, zero when there is none.
	AskTS          int64  `json:"askTs,omitempty"`
	RequiredAction Action `json:"requiredAction"`
	Description    string `json:"description"`
}

// Derive computes the session state of an ordered message history.
//
// The list is scanned backward. A partial message means the engine is
// streaming, and streaming wins over a pending ask so output is
// finished before the consumer is asked to act. A complete ask counts
// as unanswered only when it is the last message: anything the engine
// appended after it means it was answered. The scan stops at the first
// complete message that is not the pending ask.
func Derive(msgs []message.Message) Info {
	if len(msgs) == 0 {
		return Info{
			State:          NoTask,
			RequiredAction: ActionStartTask,
			Description:    "No task is running",
		}
	}

	var pending *message.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Partial {
			return streaming(m)
		}
		if i == len(msgs)-1 && m.IsAsk() {
			pending = &msgs[i]
			continue
		}
		break
	}

	if pending != nil {
		return fromAsk(*pending)
	}
	return Info{
		State:          Running,
		IsRunning:      true,
		RequiredAction: ActionWait,
		Description:    describeSay(msgs[len(msgs)-1]),
	}
}

func streaming(m message.Message) Info {
	return Info{
		State:          Streaming,
		IsRunning:      true,
		IsStreaming:    true,
		RequiredAction: ActionWait,
		Description:    fmt.Sprintf("Streaming %s", m.Subtype()),
	}
}

func fromAsk(m message.Message) Info {
	waiting := func(action Action, desc string) Info {
		return Info{
			State:             WaitingForInput,
			IsWaitingForInput: true,
			CurrentAsk:        m.Ask,
			AskTS:             m.TS,
			RequiredAction:    action,
			Description:       desc,
		}
	}

	switch m.Ask.Category() {
	case message.AskCategoryQuestion:
		return waiting(ActionAnswerQuestion, "The agent is asking a question")
	case message.AskCategoryApproval:
		return waiting(ActionApproveOrReject, describeApproval(m.Ask))
	case message.AskCategoryAcknowledge:
		return waiting(ActionAcknowledge, "Command is producing output")
	case message.AskCategoryCompletion:
		return Info{
			State:          Idle,
			CurrentAsk:     m.Ask,
			AskTS:          m.TS,
			RequiredAction: ActionStartOrFeedback,
			Description:    "Task completed",
		}
	case message.AskCategoryFailure:
		action, desc := ActionRetryOrAbort, "The API request failed"
		if m.Ask == message.AskMistakeLimitReached {
			action, desc = ActionProvideGuidance, "The agent is stuck and needs guidance"
		}
		return Info{
			State:          Idle,
			CurrentAsk:     m.Ask,
			AskTS:          m.TS,
			RequiredAction: action,
			Description:    desc,
		}
	case message.AskCategoryResume:
		desc := "The task was interrupted and can be resumed"
		if m.Ask == message.AskResumeCompletedTask {
			desc = "The completed task can be resumed"
		}
		return Info{
			State:          Resumable,
			CurrentAsk:     m.Ask,
			AskTS:          m.TS,
			RequiredAction: ActionResumeOrAbort,
			Description:    desc,
		}
	default:
		return Info{
			State:          Running,
			IsRunning:      true,
			RequiredAction: ActionWait,
			Description:    fmt.Sprintf("The agent is working (%s)", m.Subtype()),
		}
	}
}

func describeApproval(a message.Ask) string {
	switch a {
	case message.AskCommand:
		return "The agent wants to run a command"
	case message.AskTool:
		return "The agent wants to use a tool"
	case message.AskUseMCPServer:
		return "The agent wants to use an MCP server"
	case message.AskBrowserActionLaunch:
		return "The agent wants to launch a browser"
	case message.AskAutoApprovalMaxReqReached:
		return "The auto-approved request limit was reached"
	default:
		return "The agent needs approval"
	}
}

func describeSay(m message.Message) string {
	switch m.Say {
	case message.SayAPIReqStarted:
		return "Waiting for the model"
	case message.SayCommandOutput:
		return "Running a command"
	case message.SayTool:
		return "Using a tool"
	case message.SayError:
		return "The agent reported an error"
	default:
		return "The agent is working"
	}
}
