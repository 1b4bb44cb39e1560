package session

import (
	"sync"

	"github.com/hupe1980/convopipe/core"
)

// InMemoryStore is a volatile core.SessionStore keeping sessions in a
// process-local map. Safe for concurrent access; best suited for tests,
// demos and single-process deployments. Durability beyond process lifetime
// is out of scope by design.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// Compile-time interface assertion.
var _ core.SessionStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// GetOrCreate returns the session for id, creating it with status NEW when
// absent. An empty id allocates a fresh identifier. Terminal sessions are
// returned as-is; callers gate on Status before mutating.
func (s *InMemoryStore) GetOrCreate(id string) (*core.Session, error) {
	if id == "" {
		id = core.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return s.createLocked(id), nil
}

// Append assigns the next sequence number to msg and stores it. The first
// accepted message transitions NEW to ACTIVE.
func (s *InMemoryStore) Append(id string, msg core.Message) (int, error) {
	sess, err := s.writable(id)
	if err != nil {
		return 0, err
	}
	return sess.Append(msg), nil
}

// UpdateState sets a state key on the session. Last write wins.
func (s *InMemoryStore) UpdateState(id, key string, value any) error {
	sess, err := s.writable(id)
	if err != nil {
		return err
	}
	sess.SetState(key, value)
	return nil
}

// GetState reads a state key, returning def when the key is absent.
func (s *InMemoryStore) GetState(id, key string, def any) (any, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if v, ok := sess.GetState(key); ok {
		return v, nil
	}
	return def, nil
}

// CompleteTurn bumps the turn counter for an accepted round-trip.
func (s *InMemoryStore) CompleteTurn(id string) (int, error) {
	sess, err := s.writable(id)
	if err != nil {
		return 0, err
	}
	return sess.CompleteTurn(), nil
}

// RecordInvocation appends a tool invocation to the session audit trail.
func (s *InMemoryStore) RecordInvocation(id string, inv core.ToolInvocation) error {
	sess, err := s.writable(id)
	if err != nil {
		return err
	}
	sess.RecordInvocation(inv)
	return nil
}

// Close transitions the session to CLOSED. CLOSED and EXPIRED are terminal;
// closing a terminal session fails with SessionUnavailable.
func (s *InMemoryStore) Close(id string) error {
	return s.terminate(id, core.StatusClosed)
}

// Expire transitions the session to EXPIRED. Invoked by an external TTL
// sweep; the store never schedules expiry itself.
func (s *InMemoryStore) Expire(id string) error {
	return s.terminate(id, core.StatusExpired)
}

// Status reports the session's current lifecycle state.
func (s *InMemoryStore) Status(id string) (core.Status, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return sess.CurrentStatus(), nil
}

// Snapshot returns an immutable deep-copy export of the session. Snapshots
// of terminal sessions remain readable.
func (s *InMemoryStore) Snapshot(id string) (*core.SessionSnapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

func (s *InMemoryStore) terminate(id string, status core.Status) error {
	sess, err := s.writable(id)
	if err != nil {
		return err
	}
	sess.Transition(status)
	return nil
}

// writable resolves id to a session that still accepts mutation.
func (s *InMemoryStore) writable(id string) (*core.Session, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if st := sess.CurrentStatus(); st.Terminal() {
		return nil, &core.SessionUnavailable{ID: id, Status: st}
	}
	return sess, nil
}

func (s *InMemoryStore) lookup(id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, &core.SessionNotFound{ID: id}
	}
	return sess, nil
}

// createLocked allocates and stores a new session; caller must hold the
// write lock.
func (s *InMemoryStore) createLocked(id string) *core.Session {
	sess := core.NewSession(id)
	s.sessions[id] = sess
	return sess
}
