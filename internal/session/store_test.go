package session

import (
	"testing"

	"github.com/inercia/tether/internal/message"
	"github.com/inercia/tether/internal/state"
)

func say(ts int64, text string, partial bool) message.Message {
	return message.Message{TS: ts, Type: message.TypeSay, Say: message.SayText, Text: text, Partial: partial}
}

func collect(s *Store) (*[]Change, func()) {
	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) { changes = append(changes, c) })
	return &changes, unsubscribe
}

func TestNewStore(t *testing.T) {
	s := NewStore()
	if got := s.State().State; got != state.NoTask {
		t.Errorf("State = %q, want %q", got, state.NoTask)
	}
	if len(s.Messages()) != 0 {
		t.Errorf("Messages() = %v, want empty", s.Messages())
	}
}

func TestMergeIdempotent(t *testing.T) {
	s := NewStore()
	changes, _ := collect(s)

	snapshot := []message.Message{say(1, "task", false), say(2, "Hel", true)}
	s.Merge(snapshot)
	s.Merge(snapshot)

	if len(*changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(*changes))
	}
	c := (*changes)[0]
	if c.Reason != ReasonMerge || len(c.Updated) != 2 {
		t.Errorf("change = %+v", c)
	}
	if c.Snapshot.State.State != state.Streaming {
		t.Errorf("State = %q, want %q", c.Snapshot.State.State, state.Streaming)
	}
}

func TestMergeReportsOnlyChangedMessages(t *testing.T) {
	s := NewStore()
	s.Merge([]message.Message{say(1, "task", false), say(2, "Hel", true)})

	changes, _ := collect(s)
	s.Merge([]message.Message{say(1, "task", false), say(2, "Hello", true), say(3, "x", false)})

	if len(*changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(*changes))
	}
	updated := (*changes)[0].Updated
	if len(updated) != 2 || updated[0].TS != 2 || updated[1].TS != 3 {
		t.Errorf("Updated = %+v, want ts 2 and 3", updated)
	}
}

func TestMergeOne(t *testing.T) {
	s := NewStore()
	changes, _ := collect(s)

	s.MergeOne(say(2, "b", false))
	s.MergeOne(say(1, "a", false))
	s.MergeOne(say(3, "c", true))
	s.MergeOne(say(3, "c", true))
	s.MergeOne(say(3, "cc", false))

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len(Messages()) = %d, want 3", len(msgs))
	}
	for i, want := range []int64{1, 2, 3} {
		if msgs[i].TS != want {
			t.Errorf("Messages()[%d].TS = %d, want %d", i, msgs[i].TS, want)
		}
	}
	if msgs[2].Text != "cc" || msgs[2].Partial {
		t.Errorf("Messages()[2] = %+v, want final cc", msgs[2])
	}
	if len(*changes) != 4 {
		t.Errorf("got %d changes, want 4 (duplicate update ignored)", len(*changes))
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	s := NewStore()
	s.MergeOne(say(1, "a", false))
	before := s.Snapshot()

	s.MergeOne(say(1, "changed", false))
	if before.Messages[0].Text != "a" {
		t.Errorf("earlier snapshot was modified: %+v", before.Messages[0])
	}
	if s.Snapshot().Version <= before.Version {
		t.Errorf("Version did not increase")
	}
}

func TestClearKeepsMode(t *testing.T) {
	s := NewStore()
	s.MergeState(message.State{Messages: []message.Message{say(1, "a", false)}, Mode: "architect"})
	s.Clear()

	snap := s.Snapshot()
	if len(snap.Messages) != 0 {
		t.Errorf("Messages = %v, want empty", snap.Messages)
	}
	if snap.Mode != "architect" {
		t.Errorf("Mode = %q, want %q", snap.Mode, "architect")
	}
	if snap.State.State != state.NoTask {
		t.Errorf("State = %q, want %q", snap.State.State, state.NoTask)
	}

	s.Reset()
	if s.Snapshot().Mode != "" {
		t.Errorf("Mode = %q after Reset, want empty", s.Snapshot().Mode)
	}
}

func TestModeOnlyChangeNotifies(t *testing.T) {
	s := NewStore()
	changes, _ := collect(s)
	s.MergeState(message.State{Mode: "code"})
	if len(*changes) != 1 || (*changes)[0].Snapshot.Mode != "code" {
		t.Errorf("changes = %+v", *changes)
	}
}

func TestUnsubscribe(t *testing.T) {
	s := NewStore()
	changes, unsubscribe := collect(s)
	s.MergeOne(say(1, "a", false))
	unsubscribe()
	unsubscribe()
	s.MergeOne(say(2, "b", false))

	if len(*changes) != 1 {
		t.Errorf("got %d changes, want 1", len(*changes))
	}
}

func TestMergeSortsByTS(t *testing.T) {
	s := NewStore()
	s.Merge([]message.Message{say(3, "c", false), say(1, "a", false)})
	msgs := s.Messages()
	if msgs[0].TS != 1 || msgs[1].TS != 3 {
		t.Errorf("Messages() = %+v, want ts order", msgs)
	}
}
