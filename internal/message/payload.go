package message

import (
	"encoding/json"
	"strings"
)

// Followup is the parsed payload of a followup ask.
type Followup struct {
	Question    string
	Suggestions []string
}

// Default returns the answer used when nobody replies in time: the
// first suggestion, or the empty string.
func (f Followup) Default() string {
	if len(f.Suggestions) == 0 {
		return ""
	}
	return f.Suggestions[0]
}

type followupPayload struct {
	Question string            `json:"question"`
	Suggest  []json.RawMessage `json:"suggest"`
	Options  []string          `json:"options"`
}

// ParseFollowup extracts the question and suggested answers from a
// followup ask text. Text that is not a JSON object is the question itself.
func ParseFollowup(text string) Followup {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return Followup{Question: text}
	}
	var p followupPayload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return Followup{Question: text}
	}

	f := Followup{Question: p.Question}
	for _, raw := range p.Suggest {
		// Suggestions come either as {"answer": "..."} or as bare strings.
		var s struct {
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal(raw, &s); err == nil && s.Answer != "" {
			f.Suggestions = append(f.Suggestions, s.Answer)
			continue
		}
		var plain string
		if err := json.Unmarshal(raw, &plain); err == nil && plain != "" {
			f.Suggestions = append(f.Suggestions, plain)
		}
	}
	for _, o := range p.Options {
		if o != "" {
			f.Suggestions = append(f.Suggestions, o)
		}
	}
	return f
}

// Tool is the parsed payload of a tool ask or say.
type Tool struct {
	Name    string `json:"tool"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
	Diff    string `json:"diff,omitempty"`
}

// ParseTool extracts a tool payload. It returns false when the text is
// not a JSON object naming a tool.
func ParseTool(text string) (Tool, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return Tool{}, false
	}
	var t Tool
	if err := json.Unmarshal([]byte(trimmed), &t); err != nil || t.Name == "" {
		return Tool{}, false
	}
	return t, true
}
