// Package message defines the typed messages exchanged with an agent
// engine: the say/ask history entries, the inbound envelopes that carry
// them and the outbound commands the consumer sends back.
package message

// Type is the kind of a message.
type Type string

const (
	// TypeSay is an informational message describing what the engine is doing.
	TypeSay Type = "say"
	// TypeAsk is a request from the engine that may need a response.
	TypeAsk Type = "ask"
)

// Message is a single entry of the engine's message history.
//
// A TS may be delivered repeatedly while Partial is true, each text
// extending the previous one, until one terminal occurrence with
// Partial false.
type Message struct {
	TS      int64    `json:"ts"`
	Type    Type     `json:"type"`
	Ask     Ask      `json:"ask,omitempty"`
	Say     Say      `json:"say,omitempty"`
	Text    string   `json:"text,omitempty"`
	Partial bool     `json:"partial,omitempty"`
	Images  []string `json:"images,omitempty"`
}

// IsAsk reports whether the message is an ask.
func (m Message) IsAsk() bool { return m.Type == TypeAsk }

// IsSay reports whether the message is a say.
func (m Message) IsSay() bool { return m.Type == TypeSay }

// Subtype returns the say or ask subtype as a plain string.
func (m Message) Subtype() string {
	if m.Type == TypeAsk {
		return string(m.Ask)
	}
	return string(m.Say)
}
