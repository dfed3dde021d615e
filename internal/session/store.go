// Package session keeps bounded per-session conversation history in memory.
// Sessions are created lazily on first use and never explicitly destroyed.
package session

import (
	"sync"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one recorded message in a session.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const defaultMaxTurns = 20

// Store holds per-session turn windows. Each session has its own locks, so
// unrelated sessions never serialize against each other; within a session,
// appends are atomic and the oldest turns are evicted first once the cap is
// exceeded.
type Store struct {
	maxTurns int
	clock    Clock
	sessions sync.Map // session id -> *state
}

type state struct {
	// procMu serializes whole-message processing for the session so turn
	// order always reflects the order messages were accepted, not the order
	// upstream responses complete.
	procMu sync.Mutex

	mu    sync.Mutex
	turns []Turn
}

// NewStore creates a Store keeping at most maxTurns turns per session
// (default 20 when <= 0).
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Store{maxTurns: maxTurns, clock: realClock{}}
}

func (s *Store) session(id string) *state {
	v, _ := s.sessions.LoadOrStore(id, &state{})
	return v.(*state)
}

// Append records a turn for the session, evicting the oldest turn when the
// window is full.
func (s *Store) Append(id string, role Role, text string) {
	st := s.session(id)

	st.mu.Lock()
	defer st.mu.Unlock()

	st.turns = append(st.turns, Turn{Role: role, Text: text, Timestamp: s.clock.Now()})
	if len(st.turns) > s.maxTurns {
		st.turns = append(st.turns[:0:0], st.turns[len(st.turns)-s.maxTurns:]...)
	}
}

// History returns a copy of the session's recorded turns in order.
func (s *Store) History(id string) []Turn {
	v, ok := s.sessions.Load(id)
	if !ok {
		return nil
	}
	st := v.(*state)

	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]Turn, len(st.turns))
	copy(out, st.turns)
	return out
}

// Texts returns just the turn texts, oldest first.
func (s *Store) Texts(id string) []string {
	turns := s.History(id)
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Text
	}
	return out
}

// Serialize runs fn while holding the session's processing lock. The lock is
// distinct from the append lock: it spans an entire message's handling
// (including the upstream generative call) so a slow earlier message cannot
// have its turns recorded after a faster later one.
func (s *Store) Serialize(id string, fn func()) {
	st := s.session(id)
	st.procMu.Lock()
	defer st.procMu.Unlock()
	fn()
}
