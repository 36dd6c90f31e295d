// Package stream turns repeated growing-prefix snapshots of a message
// into minimal incremental output.
package stream

import "strings"

// Kind is the kind of an Emission.
type Kind int

const (
	// Init starts rendering a message with its first text.
	Init Kind = iota
	// Delta appends text to a message being rendered.
	Delta
	// Finish closes the rendering of a message.
	Finish
)

func (k Kind) String() string {
	switch k {
	case Init:
		return "init"
	case Delta:
		return "delta"
	case Finish:
		return "finish"
	default:
		return "unknown"
	}
}

// Emission is one rendering instruction produced by the Reconstructor.
type Emission struct {
	Kind Kind
	TS   int64
	Text string
	// Complete is set on an Init for a message that arrived fully
	// formed; no Delta or Finish follows it.
	Complete bool
}

type tracker struct {
	text string
	done bool
}

// Reconstructor tracks, per message ts, the text already emitted.
// Terminal trackers are kept so that retransmitted snapshots of a
// message already rendered produce nothing.
//
// A Reconstructor is not safe for concurrent use; it is driven from the
// session event loop.
type Reconstructor struct {
	trackers  map[int64]*tracker
	active    int64
	hasActive bool
}

// New returns an empty Reconstructor.
func New() *Reconstructor {
	return &Reconstructor{trackers: make(map[int64]*tracker)}
}

// OnSnapshot processes one occurrence of message ts and returns the
// emissions needed to bring the rendered output up to date.
func (r *Reconstructor) OnSnapshot(ts int64, text string, partial bool) []Emission {
	t, ok := r.trackers[ts]
	if ok && t.done {
		return nil
	}

	if !partial {
		return r.terminal(ts, text, t)
	}

	if !ok {
		// An empty first chunk carries nothing to show yet.
		if text == "" {
			return nil
		}
		out := r.activate(ts, nil)
		r.trackers[ts] = &tracker{text: text}
		return append(out, Emission{Kind: Init, TS: ts, Text: text})
	}

	if !extends(text, t.text) {
		return nil
	}
	out := r.activate(ts, nil)
	delta := text[len(t.text):]
	t.text = text
	return append(out, Emission{Kind: Delta, TS: ts, Text: delta})
}

func (r *Reconstructor) terminal(ts int64, text string, t *tracker) []Emission {
	if t == nil {
		out := r.finishActive(nil)
		r.trackers[ts] = &tracker{text: text, done: true}
		return append(out, Emission{Kind: Init, TS: ts, Text: text, Complete: true})
	}

	out := r.activate(ts, nil)
	if extends(text, t.text) {
		out = append(out, Emission{Kind: Delta, TS: ts, Text: text[len(t.text):]})
		t.text = text
	}
	t.done = true
	r.hasActive = false
	return append(out, Emission{Kind: Finish, TS: ts})
}

// activate makes ts the active stream, finishing the rendering of any
// other active stream. The other stream's tracker is left untouched.
func (r *Reconstructor) activate(ts int64, out []Emission) []Emission {
	if r.hasActive && r.active == ts {
		return out
	}
	out = r.finishActive(out)
	r.active, r.hasActive = ts, true
	return out
}

func (r *Reconstructor) finishActive(out []Emission) []Emission {
	if !r.hasActive {
		return out
	}
	r.hasActive = false
	return append(out, Emission{Kind: Finish, TS: r.active})
}

// activeStream returns the ts of the stream currently being rendered.
func (r *Reconstructor) activeStream() (int64, bool) {
	return r.active, r.hasActive
}

// displayed reports whether message ts has been rendered in full.
func (r *Reconstructor) displayed(ts int64) bool {
	t, ok := r.trackers[ts]
	return ok && t.done
}

// Reset forgets every tracker. It is used when the session is cleared.
func (r *Reconstructor) Reset() {
	r.trackers = make(map[int64]*tracker)
	r.hasActive = false
	r.active = 0
}

// extends reports whether next strictly extends prev.
func extends(next, prev string) bool {
	return len(next) > len(prev) && strings.HasPrefix(next, prev)
}
