package linker

import (
	"errors"
	"fmt"
)

// ErrLinkingTimeout indicates no qualifying backend event arrived within
// the linking deadline.
var ErrLinkingTimeout = errors.New("timed out waiting for linking event")

// ErrNotFound indicates no session is registered for the identity.
var ErrNotFound = errors.New("session not found")

// ErrSessionClosed indicates the session was torn down, by an explicit
// disconnect or process shutdown, before the linking attempt produced a
// qualifying event.
var ErrSessionClosed = errors.New("session closed before linking completed")

// DisconnectedError indicates the backend dropped the connection before the
// linking attempt produced a qualifying event.
type DisconnectedError struct {
	Reason string
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("backend disconnected: %s", e.Reason)
}

// AuthFailureError indicates the backend explicitly rejected the pairing.
type AuthFailureError struct {
	Reason string
}

func (e *AuthFailureError) Error() string {
	return fmt.Sprintf("backend rejected authentication: %s", e.Reason)
}

// InitError indicates backend construction or early connection failed.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("backend initialization failed: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
