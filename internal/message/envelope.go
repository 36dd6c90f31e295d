package message

// InboundType identifies an envelope received from the engine.
type InboundType string

const (
	// InboundState carries a full snapshot of the message history.
	InboundState InboundType = "state"
	// InboundMessageUpdated carries a single new or updated message.
	InboundMessageUpdated InboundType = "messageUpdated"
	// InboundReady signals that the engine accepts commands.
	InboundReady InboundType = "ready"
)

// Inbound is an envelope received from the engine.
type Inbound struct {
	Type    InboundType `json:"type"`
	State   *State      `json:"state,omitempty"`
	Message *Message    `json:"message,omitempty"`
}

// State is the payload of a state envelope.
type State struct {
	Messages []Message `json:"messages"`
	// Mode is the engine's active mode label, preserved across tasks.
	Mode string `json:"mode,omitempty"`
}

// OutboundType identifies a command sent to the engine.
type OutboundType string

const (
	OutboundNewTask        OutboundType = "newTask"
	OutboundAskResponse    OutboundType = "askResponse"
	OutboundCancelTask     OutboundType = "cancelTask"
	OutboundUpdateSettings OutboundType = "updateSettings"
)

// AskResponse is the answer kind carried by an askResponse command.
type AskResponse string

const (
	AskResponseYes     AskResponse = "yesButtonClicked"
	AskResponseNo      AskResponse = "noButtonClicked"
	AskResponseMessage AskResponse = "messageResponse"
)

// Outbound is a command sent to the engine.
type Outbound struct {
	Type            OutboundType   `json:"type"`
	Text            string         `json:"text,omitempty"`
	Images          []string       `json:"images,omitempty"`
	AskResponse     AskResponse    `json:"askResponse,omitempty"`
	UpdatedSettings map[string]any `json:"updatedSettings,omitempty"`
}

// NewTask returns a command starting a task with the given prompt.
func NewTask(text string) Outbound {
	return Outbound{Type: OutboundNewTask, Text: text}
}

// Respond returns an askResponse command.
func Respond(kind AskResponse, text string) Outbound {
	return Outbound{Type: OutboundAskResponse, AskResponse: kind, Text: text}
}

// CancelTask returns a command cancelling the running task.
func CancelTask() Outbound {
	return Outbound{Type: OutboundCancelTask}
}

// UpdateSettings returns a command replacing engine settings.
func UpdateSettings(settings map[string]any) Outbound {
	return Outbound{Type: OutboundUpdateSettings, UpdatedSettings: settings}
}
