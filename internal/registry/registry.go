package registry

import (
	"fmt"
	"sync"
)

// ConflictError is returned by TryAcquire when the identity already has a
// live session in a non-terminal state.
type ConflictError struct {
	Identity string
	State    State
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("identity %s already active (state %s)", e.Identity, e.State)
}

// Registry is the in-memory map from identity key to live session. It is
// the single source of truth for whether an identity is currently being
// handled. The registry only mutates the map; resource teardown belongs to
// the lifecycle controller.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// TryAcquire atomically claims the identity. If a session in a non-terminal
// state already exists it returns a ConflictError. A terminal session is
// displaced: the new session takes its slot and the old one is returned so
// the caller can finish tearing it down.
func (r *Registry) TryAcquire(identity, sessionID string, useQR bool) (sess, displaced *Session, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[identity]; ok {
		if !existing.State().Terminal() {
			return nil, nil, &ConflictError{Identity: identity, State: existing.State()}
		}
		displaced = existing
	}

	sess = newSession(identity, sessionID, useQR)
	r.sessions[identity] = sess
	return sess, displaced, nil
}

// Get returns the session for an identity.
func (r *Registry) Get(identity string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[identity]
	return sess, ok
}

// Remove deletes the identity's session only if its session ID matches.
// This guards the reaper and explicit disconnect against removing a session
// that was concurrently superseded. Returns whether a removal happened.
func (r *Registry) Remove(identity, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[identity]
	if !ok || sess.SessionID != sessionID {
		return false
	}

	delete(r.sessions, identity)
	return true
}

// Snapshots returns read-only copies of every registered session.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.Snapshot())
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
