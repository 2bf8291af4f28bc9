package backend

import (
	"context"
	"log"
)

// EventKind identifies an asynchronous event emitted by a backend client.
type EventKind int

const (
	// EventLinkingCode carries a pairing code the user types into their app.
	EventLinkingCode EventKind = iota
	// EventQR carries a QR payload for the fallback scan flow. May recur.
	EventQR
	// EventAuthenticated fires when the backend accepts the pairing.
	EventAuthenticated
	// EventReady fires when the connection is fully usable.
	EventReady
	// EventAuthFailed fires when the backend rejects the pairing.
	EventAuthFailed
	// EventDisconnected fires when the connection drops. May recur.
	EventDisconnected
	// EventError carries a non-fatal backend error.
	EventError
)

// String returns a string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventLinkingCode:
		return "linking_code"
	case EventQR:
		return "qr"
	case EventAuthenticated:
		return "authenticated"
	case EventReady:
		return "ready"
	case EventAuthFailed:
		return "auth_failed"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single backend occurrence delivered to the lifecycle controller.
type Event struct {
	Kind   EventKind
	Code   string // pairing code, set for EventLinkingCode
	QR     string // QR payload, set for EventQR
	Reason string // set for EventAuthFailed and EventDisconnected
	Err    error  // set for EventError
}

// Options describes how to construct a backend client for one session.
// ProfileDir and CacheDir are per-attempt scratch space; StoreDir holds the
// identity's registered device state and must outlive the attempt for
// reconnection to work.
type Options struct {
	Identity    string
	SessionID   string
	ProfileDir  string
	CacheDir    string
	StoreDir    string
	ResumeToken string // persisted token from a prior connection, may be empty
	UseQR       bool   // request the QR scan flow instead of a pairing code
}

// Client is the capability contract the lifecycle controller requires from
// a messaging backend. Implementations own their connection exclusively;
// Destroy must be idempotent.
type Client interface {
	// GetSessionToken returns the resumable session token, or "" if the
	// backend has not produced one yet.
	GetSessionToken() string

	// SendText delivers a plain text message to the given chat.
	SendText(ctx context.Context, chatID, body string) error

	// IsConnected reports whether the underlying connection is live.
	IsConnected() bool

	// Destroy tears down the connection and all owned resources. Safe to
	// call more than once; later calls are no-ops.
	Destroy()
}

// Factory constructs a backend client for a session. The returned channel
// delivers the client's events in emission order and is closed by Destroy.
type Factory func(ctx context.Context, opts Options, logger *log.Logger) (Client, <-chan Event, error)
