// Package session holds the canonical message history of one agent
// session and the state derived from it.
package session

import (
	"slices"
	"sort"
	"sync"

	"github.com/inercia/tether/internal/message"
	"github.com/inercia/tether/internal/state"
)

// Reason describes the mutation that produced a Change.
type Reason string

const (
	ReasonMerge  Reason = "merge"
	ReasonUpdate Reason = "update"
	ReasonClear  Reason = "clear"
	ReasonReset  Reason = "reset"
)

// Snapshot is an immutable view of the store. Messages must not be
// modified by readers.
type Snapshot struct {
	Messages []message.Message
	State    state.Info
	// Mode is the engine's active mode label. It survives Clear.
	Mode    string
	Version uint64
}

// Change is delivered to subscribers after every mutation.
type Change struct {
	Snapshot Snapshot
	// Updated holds the messages added or modified by the mutation, in
	// ts order.
	Updated []message.Message
	Reason  Reason
}

// Listener receives store changes.
type Listener func(Change)

// Store owns the message list of a session. Every mutation replaces the
// snapshot as a whole, recomputes the derived state, and notifies
// subscribers in mutation order.
//
// Listeners run synchronously while mutations are held back, so they
// must not mutate the store themselves.
type Store struct {
	// writeMu serializes mutations together with their notifications.
	writeMu sync.Mutex

	mu   sync.RWMutex
	snap Snapshot

	subsMu sync.Mutex
	subs   map[int]Listener
	nextID int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		snap: Snapshot{State: state.Derive(nil)},
		subs: make(map[int]Listener),
	}
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Messages returns the current message list.
func (s *Store) Messages() []message.Message {
	return s.Snapshot().Messages
}

// State returns the current derived state.
func (s *Store) State() state.Info {
	return s.Snapshot().State
}

// Subscribe registers fn for future changes and returns a func that
// removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// Merge replaces the message list with a full snapshot from the engine.
// Delivering the same snapshot twice changes nothing and notifies no one.
func (s *Store) Merge(msgs []message.Message) {
	s.MergeState(message.State{Messages: msgs})
}

// MergeState is Merge for a state payload, also adopting its mode
// label when one is set.
func (s *Store) MergeState(st message.State) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.Snapshot()
	next := slices.Clone(st.Messages)
	sort.SliceStable(next, func(i, j int) bool { return next[i].TS < next[j].TS })

	known := make(map[int64]message.Message, len(prev.Messages))
	for _, m := range prev.Messages {
		known[m.TS] = m
	}
	var updated []message.Message
	for _, m := range next {
		if old, ok := known[m.TS]; !ok || !equal(old, m) {
			updated = append(updated, m)
		}
	}

	mode := prev.Mode
	if st.Mode != "" {
		mode = st.Mode
	}
	if len(updated) == 0 && len(next) == len(prev.Messages) && mode == prev.Mode {
		return
	}
	s.commit(next, mode, updated, ReasonMerge)
}

// MergeOne inserts or replaces a single message by ts.
func (s *Store) MergeOne(m message.Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.Snapshot()
	i := sort.Search(len(prev.Messages), func(i int) bool { return prev.Messages[i].TS >= m.TS })

	next := make([]message.Message, 0, len(prev.Messages)+1)
	next = append(next, prev.Messages[:i]...)
	if i < len(prev.Messages) && prev.Messages[i].TS == m.TS {
		if equal(prev.Messages[i], m) {
			return
		}
		next = append(next, m)
		next = append(next, prev.Messages[i+1:]...)
	} else {
		next = append(next, m)
		next = append(next, prev.Messages[i:]...)
	}
	s.commit(next, prev.Mode, []message.Message{m}, ReasonUpdate)
}

// Clear drops the message list for a new task, keeping the mode label.
func (s *Store) Clear() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.commit(nil, s.Snapshot().Mode, nil, ReasonClear)
}

// Reset returns the store to its initial state.
func (s *Store) Reset() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.commit(nil, "", nil, ReasonReset)
}

// commit installs a new snapshot and notifies subscribers. writeMu must
// be held.
func (s *Store) commit(msgs []message.Message, mode string, updated []message.Message, reason Reason) {
	s.mu.Lock()
	s.snap = Snapshot{
		Messages: msgs,
		State:    state.Derive(msgs),
		Mode:     mode,
		Version:  s.snap.Version + 1,
	}
	snap := s.snap
	s.mu.Unlock()

	s.subsMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.subs[id])
	}
	s.subsMu.Unlock()

	change := Change{Snapshot: snap, Updated: updated, Reason: reason}
	for _, fn := range listeners {
		fn(change)
	}
}

func equal(a, b message.Message) bool {
	return a.TS == b.TS &&
		a.Type == b.Type &&
		a.Ask == b.Ask &&
		a.Say == b.Say &&
		a.Text == b.Text &&
		a.Partial == b.Partial &&
		slices.Equal(a.Images, b.Images)
}
