package registry

import (
	"sync"
	"time"

	"github.com/neekaru/whatsapp-linker/internal/backend"
)

// State is the lifecycle state of a session.
type State int

const (
	StateInitializing State = iota
	StateAwaitingCode
	StateAwaitingScan
	StateAuthenticated
	StateConnected
	StateDisconnected
	StateFailed
)

// String returns a string representation of the session state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateAwaitingCode:
		return "AwaitingCode"
	case StateAwaitingScan:
		return "AwaitingScan"
	case StateAuthenticated:
		return "Authenticated"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// Session tracks one identity's current connection attempt or active
// connection. Fields are mutated only by the lifecycle controller; every
// other caller reads through Snapshot.
type Session struct {
	Identity  string
	SessionID string

	mu           sync.RWMutex
	state        State
	handle       backend.Client
	linkingCode  string
	codeExpiry   time.Time
	qrPayload    string
	qrExpiry     time.Time
	lastError    error
	createdAt    time.Time
	lastEventAt  time.Time
	useQR        bool
}

func newSession(identity, sessionID string, useQR bool) *Session {
	now := time.Now()
	return &Session{
		Identity:    identity,
		SessionID:   sessionID,
		state:       StateInitializing,
		useQR:       useQR,
		createdAt:   now,
		lastEventAt: now,
	}
}

// Snapshot is a read-only copy of a session's mutable state.
type Snapshot struct {
	Identity    string
	SessionID   string
	State       State
	Connected   bool
	LinkingCode string
	CodeExpiry  time.Time
	QRPayload   string
	QRExpiry    time.Time
	LastError   error
	CreatedAt   time.Time
	LastEventAt time.Time
}

// Snapshot returns a consistent copy of the session for handlers and
// listings.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connected := false
	if s.handle != nil {
		connected = s.state == StateConnected && s.handle.IsConnected()
	}

	return Snapshot{
		Identity:    s.Identity,
		SessionID:   s.SessionID,
		State:       s.state,
		Connected:   connected,
		LinkingCode: s.linkingCode,
		CodeExpiry:  s.codeExpiry,
		QRPayload:   s.qrPayload,
		QRExpiry:    s.qrExpiry,
		LastError:   s.lastError,
		CreatedAt:   s.createdAt,
		LastEventAt: s.lastEventAt,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UseQR reports whether the session was started with the QR scan method.
func (s *Session) UseQR() bool {
	return s.useQR
}

// Handle returns the backend client owned by this session, or nil before
// construction finished.
func (s *Session) Handle() backend.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// CreatedAt returns the session's creation time.
func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// SetHandle attaches the backend client. Called once by the controller
// after construction succeeds.
func (s *Session) SetHandle(h backend.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

// AttachHandleIfActive attaches the backend client only if the session has
// not already reached a terminal state, which can happen when the linking
// deadline fires while the backend is still being constructed. Returns
// whether the handle was attached; if not, the caller still owns it and
// must destroy it.
func (s *Session) AttachHandleIfActive(h backend.Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.handle = h
	return true
}

// SetState transitions the session and stamps the event time.
func (s *Session) SetState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.lastEventAt = time.Now()
}

// TransitionIfActive moves to the given state unless a terminal state was
// already reached, so a concurrent deadline or teardown cannot be undone by
// a late backend event. Returns whether the transition happened.
func (s *Session) TransitionIfActive(st State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = st
	s.lastEventAt = time.Now()
	return true
}

// AdvanceFrom transitions to the given state only if the current state is
// one of from, in a single critical section. Returns whether the transition
// happened.
func (s *Session) AdvanceFrom(to State, from ...State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range from {
		if s.state == f {
			s.state = to
			s.lastEventAt = time.Now()
			return true
		}
	}
	return false
}

// SetLinkingCode stores the last issued pairing code with its expiry.
func (s *Session) SetLinkingCode(code string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkingCode = code
	s.codeExpiry = expiry
	s.lastEventAt = time.Now()
}

// SetQRPayload stores the last issued QR payload with its expiry.
func (s *Session) SetQRPayload(payload string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qrPayload = payload
	s.qrExpiry = expiry
	s.lastEventAt = time.Now()
}

// HasLinkingCode reports whether a pairing code was ever issued.
func (s *Session) HasLinkingCode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.linkingCode != ""
}

// SetLastError records the most recent backend error.
func (s *Session) SetLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
	s.lastEventAt = time.Now()
}
