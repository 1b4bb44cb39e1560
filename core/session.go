package core

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusNew marks a session that has not yet accepted a message.
	StatusNew Status = "NEW"
	// StatusActive marks a session with at least one accepted message.
	StatusActive Status = "ACTIVE"
	// StatusClosed marks a session terminated by an explicit close. Terminal.
	StatusClosed Status = "CLOSED"
	// StatusExpired marks a session removed by an external TTL sweep. Terminal.
	StatusExpired Status = "EXPIRED"
)

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool { return s == StatusClosed || s == StatusExpired }

// Session is a single ongoing conversation: mutable key/value state plus an
// ordered, append-only message history. It is safe for concurrent access.
//
// Contract:
//   - Message.Sequence values are gapless and strictly increasing from 0
//   - TurnCounter increases by exactly 1 per completed round-trip
//   - State keys are unique; last write wins; no implicit deletion
//   - Snapshot returns a deep copy safe from external mutation
type Session struct {
	ID          string           `json:"id"`
	CreatedAt   time.Time        `json:"created_at"`
	TurnCounter int              `json:"turn_counter"`
	State       map[string]any   `json:"state"`
	Messages    []Message        `json:"messages"`
	Status      Status           `json:"status"`
	Audit       []ToolInvocation `json:"audit,omitempty"`

	mu sync.RWMutex
}

// NewSession creates a session in status NEW with empty state and history.
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		State:     map[string]any{},
		Messages:  []Message{},
		Status:    StatusNew,
	}
}

// CurrentStatus returns the session status under the read lock.
func (s *Session) CurrentStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// SetState sets a key/value pair in session state. Last write wins.
func (s *Session) SetState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State[key] = value
}

// Append adds a message to the history, assigning the next sequence number,
// and returns it. The NEW→ACTIVE transition happens on the first append.
func (s *Session) Append(msg Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.Sequence = len(s.Messages)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.Messages = append(s.Messages, msg)
	if s.Status == StatusNew {
		s.Status = StatusActive
	}
	return msg.Sequence
}

// CompleteTurn increments the turn counter once and returns the new value.
// Called exactly once per accepted round-trip, never on rejection.
func (s *Session) CompleteTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TurnCounter++
	return s.TurnCounter
}

// Transition sets the session status under the lock. The store enforces
// which transitions are legal before calling this.
func (s *Session) Transition(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

// RecordInvocation appends a tool invocation to the session audit trail.
func (s *Session) RecordInvocation(inv ToolInvocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Audit = append(s.Audit, inv)
}

// GetMessages returns a defensive copy of the full message history.
func (s *Session) GetMessages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	return msgs
}

// Snapshot returns an immutable deep-copy export of the session.
func (s *Session) Snapshot() *SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &SessionSnapshot{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		TurnCounter: s.TurnCounter,
		Status:      s.Status,
		State:       make(map[string]any, len(s.State)),
		Messages:    make([]Message, len(s.Messages)),
		Audit:       make([]ToolInvocation, len(s.Audit)),
	}
	for k, v := range s.State {
		snap.State[k] = v
	}
	copy(snap.Messages, s.Messages)
	copy(snap.Audit, s.Audit)
	return snap
}

// SessionSnapshot is a point-in-time deep copy of a session, detached from
// the store. It round-trips through JSON into the same shapes.
type SessionSnapshot struct {
	ID          string           `json:"id"`
	CreatedAt   time.Time        `json:"created_at"`
	TurnCounter int              `json:"turn_counter"`
	Status      Status           `json:"status"`
	State       map[string]any   `json:"state"`
	Messages    []Message        `json:"messages"`
	Audit       []ToolInvocation `json:"audit,omitempty"`
}

// SessionStore persists sessions and owns their lifetime exclusively. All
// mutation of persisted state goes through the store; pipeline stages never
// write to a session directly.
type SessionStore interface {
	// GetOrCreate returns the session for id, creating it with status NEW if
	// absent. An empty id allocates a fresh identifier.
	GetOrCreate(id string) (*Session, error)
	// Append assigns the next sequence number to msg and stores it,
	// transitioning NEW sessions to ACTIVE. Returns the assigned sequence.
	Append(id string, msg Message) (int, error)
	// UpdateState sets a state key. Last write wins.
	UpdateState(id, key string, value any) error
	// GetState reads a state key, returning def when absent.
	GetState(id, key string, def any) (any, error)
	// CompleteTurn bumps the turn counter for an accepted round-trip.
	CompleteTurn(id string) (int, error)
	// RecordInvocation appends a tool invocation to the audit trail.
	RecordInvocation(id string, inv ToolInvocation) error
	// Close transitions ACTIVE/NEW to CLOSED. Terminal.
	Close(id string) error
	// Expire transitions ACTIVE/NEW to EXPIRED. Invoked by an external TTL
	// sweep; the store never schedules expiry itself. Terminal.
	Expire(id string) error
	// Status reports the current lifecycle state.
	Status(id string) (Status, error)
	// Snapshot returns an immutable export of the session.
	Snapshot(id string) (*SessionSnapshot, error)
}
