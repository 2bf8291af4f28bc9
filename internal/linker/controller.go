package linker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neekaru/whatsapp-linker/internal/app"
	"github.com/neekaru/whatsapp-linker/internal/arena"
	"github.com/neekaru/whatsapp-linker/internal/backend"
	"github.com/neekaru/whatsapp-linker/internal/phone"
	"github.com/neekaru/whatsapp-linker/internal/registry"
	"github.com/neekaru/whatsapp-linker/internal/storage"
)

// Connection methods accepted by StartLinking.
const (
	MethodPairCode = "pairing-code"
	MethodQR       = "qr-code"
)

const (
	pairCodeMessage  = "Enter this code in your WhatsApp app: Settings > Linked Devices > Link a Device > Link with phone number instead"
	qrMessage        = "Scan this QR code in your WhatsApp app: Settings > Linked Devices > Link a Device"
	connectedMessage = "Already connected!"
)

// Allocator is the slice of the directory arena the controller drives.
type Allocator interface {
	Allocate(sessionID string) (arena.Dirs, error)
	Release(sessionID string)
}

// Controller orchestrates session creation, wires backend events to state
// transitions, races the first qualifying event back to the caller, and
// drives cleanup on every exit path. All session field mutations happen
// here, never in request handlers.
type Controller struct {
	app     *app.App
	arena   Allocator
	factory backend.Factory
}

// NewController creates a lifecycle controller.
func NewController(application *app.App, alloc Allocator, factory backend.Factory) *Controller {
	return &Controller{
		app:     application,
		arena:   alloc,
		factory: factory,
	}
}

// StartLinking begins a new linking attempt for the phone number and blocks
// until the first of {code issued, QR issued, already connected, auth
// failure, backend init failure, timeout} settles the request. Later events
// update session state silently and are observable through Status.
func (c *Controller) StartLinking(rawPhone, method string) (*LinkResult, error) {
	identity, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}

	useQR := method == MethodQR
	sessionID := uuid.NewString()

	sess, displaced, err := c.app.Registry.TryAcquire(identity, sessionID, useQR)
	if err != nil {
		return nil, err
	}

	// A displaced terminal session must be fully torn down before the new
	// backend handle exists, so two clients never collide on the same
	// identity's persisted state.
	if displaced != nil {
		c.releaseResources(displaced)
	}

	c.app.Logger.Printf("Starting linking attempt for %s (session %s, method %s)", identity, sessionID, method)

	dirs, err := c.arena.Allocate(sessionID)
	if err != nil {
		c.app.Registry.Remove(identity, sessionID)
		return nil, &InitError{Err: err}
	}

	resumeToken := ""
	if rec, err := c.app.Store.GetCredential(identity); err == nil {
		c.app.Logger.Printf("Found persisted credentials for %s, attempting resume", identity)
		resumeToken = rec.Token
	} else if !errors.Is(err, storage.ErrNotFound) {
		c.app.Logger.Printf("Failed to read credentials for %s: %v", identity, err)
	}

	pending := newSettleOnce()

	deadline := time.AfterFunc(c.app.Config.LinkTimeout, func() {
		c.onDeadline(sess, pending)
	})

	go c.construct(sess, backend.Options{
		Identity:    identity,
		SessionID:   sessionID,
		ProfileDir:  dirs.ProfileDir,
		CacheDir:    dirs.CacheDir,
		StoreDir:    c.app.Config.DevicesDir(),
		ResumeToken: resumeToken,
		UseQR:       useQR,
	}, pending, deadline)

	out := <-pending.Wait()
	return out.result, out.err
}

// construct builds the backend client and, if the session is still live,
// hands it to the per-session event loop.
func (c *Controller) construct(sess *registry.Session, opts backend.Options, pending *settleOnce, deadline *time.Timer) {
	defer c.recoverSession(sess, pending)

	cli, events, err := c.factory(context.Background(), opts, c.app.Logger)
	if err != nil {
		c.app.Logger.Printf("Backend init failed for %s: %v", sess.Identity, err)
		initErr := &InitError{Err: err}
		sess.SetLastError(initErr)
		sess.SetState(registry.StateFailed)
		pending.Resolve(nil, initErr)
		deadline.Stop()
		c.arena.Release(sess.SessionID)
		c.scheduleSlotFree(sess)
		return
	}

	if !sess.AttachHandleIfActive(cli) {
		// The deadline or a disconnect fired mid-construction; the session
		// is already terminal and its directories released.
		cli.Destroy()
		pending.Resolve(nil, ErrSessionClosed)
		return
	}

	c.runSession(sess, cli, events, pending)
}

// runSession is the single consumer of a session's backend events. Events
// are applied in arrival order; the loop exits when Destroy closes the
// channel. A loop that exits with the request still pending means the
// session was torn down from outside (disconnect, shutdown), so the caller
// is settled here instead of waiting out the deadline.
func (c *Controller) runSession(sess *registry.Session, cli backend.Client, events <-chan backend.Event, pending *settleOnce) {
	defer c.recoverSession(sess, pending)

	for evt := range events {
		c.applyEvent(sess, cli, evt, pending)
	}

	pending.Resolve(nil, ErrSessionClosed)
}

func (c *Controller) applyEvent(sess *registry.Session, cli backend.Client, evt backend.Event, pending *settleOnce) {
	now := time.Now()

	switch evt.Kind {
	case backend.EventLinkingCode:
		c.app.Logger.Printf("Pairing code issued for %s", sess.Identity)
		sess.SetLinkingCode(evt.Code, now.Add(c.app.Config.CodeExpiry))
		sess.AdvanceFrom(registry.StateAwaitingCode, registry.StateInitializing, registry.StateAwaitingScan)
		pending.Resolve(&LinkResult{
			Identity:    sess.Identity,
			SessionID:   sess.SessionID,
			LinkingCode: evt.Code,
			Message:     pairCodeMessage,
		}, nil)

	case backend.EventQR:
		c.app.Logger.Printf("QR payload issued for %s", sess.Identity)
		sess.SetQRPayload(evt.QR, now.Add(c.app.Config.QRExpiry))
		sess.AdvanceFrom(registry.StateAwaitingScan, registry.StateInitializing)
		// The QR flow is the fallback: it answers the request only when no
		// pairing code was produced first.
		if !sess.HasLinkingCode() {
			pending.Resolve(&LinkResult{
				Identity:  sess.Identity,
				SessionID: sess.SessionID,
				QRPayload: evt.QR,
				Message:   qrMessage,
			}, nil)
		}

	case backend.EventAuthenticated:
		c.app.Logger.Printf("Backend authenticated for %s", sess.Identity)
		sess.TransitionIfActive(registry.StateAuthenticated)

	case backend.EventReady:
		c.onReady(sess, cli, pending)

	case backend.EventAuthFailed:
		c.app.Logger.Printf("Authentication failed for %s: %s", sess.Identity, evt.Reason)
		authErr := &AuthFailureError{Reason: evt.Reason}
		sess.SetLastError(authErr)
		sess.SetState(registry.StateFailed)
		pending.Resolve(nil, authErr)
		c.releaseResources(sess)
		c.scheduleSlotFree(sess)

	case backend.EventDisconnected:
		c.app.Logger.Printf("Backend disconnected for %s: %s", sess.Identity, evt.Reason)
		sess.SetState(registry.StateDisconnected)
		pending.Resolve(nil, &DisconnectedError{Reason: evt.Reason})
		c.releaseResources(sess)

	case backend.EventError:
		c.app.Logger.Printf("Backend error for %s: %v", sess.Identity, evt.Err)
		sess.SetLastError(evt.Err)
	}
}

// onReady handles the transition to Connected: persist credentials and
// metadata, send the best-effort confirmation message, and settle the
// pending request if nothing else has.
func (c *Controller) onReady(sess *registry.Session, cli backend.Client, pending *settleOnce) {
	if !sess.TransitionIfActive(registry.StateConnected) {
		// Teardown already won; a late ready event on an already-dead
		// session must not persist credentials or report success.
		return
	}
	c.app.Logger.Printf("Session %s connected for %s", sess.SessionID, sess.Identity)

	now := time.Now()

	// A failed credential write loses only the reconnection convenience;
	// the session stays connected.
	if token := cli.GetSessionToken(); token != "" {
		err := c.app.Store.PutCredential(sess.Identity, storage.CredentialRecord{
			Identity:  sess.Identity,
			SessionID: sess.SessionID,
			Token:     token,
			IssuedAt:  now,
		})
		if err != nil {
			c.app.Logger.Printf("Failed to persist credentials for %s: %v", sess.Identity, err)
		}
	} else {
		c.app.Logger.Printf("No session token available for %s", sess.Identity)
	}

	err := c.app.Store.PutMetadata(sess.Identity, storage.MetadataRecord{
		Identity:      sess.Identity,
		SessionID:     sess.SessionID,
		ConnectedAt:   now,
		ServerContext: "whatsapp-linker",
	})
	if err != nil {
		c.app.Logger.Printf("Failed to persist connection metadata for %s: %v", sess.Identity, err)
	}

	c.sendConfirmation(sess, cli, now)

	pending.Resolve(&LinkResult{
		Identity:  sess.Identity,
		SessionID: sess.SessionID,
		Connected: true,
		Message:   connectedMessage,
	}, nil)
}

// sendConfirmation messages the user their session details. Failures are
// logged and swallowed; they never affect session state.
func (c *Controller) sendConfirmation(sess *registry.Session, cli backend.Client, connectedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	body := fmt.Sprintf(
		"WhatsApp connection successful!\n\n"+
			"Phone: %s\n"+
			"Session ID: %s\n"+
			"Connected at: %s\n\n"+
			"Your session has been saved. Reconnecting later will not require a new pairing code.",
		sess.Identity, sess.SessionID, connectedAt.Format(time.RFC3339),
	)

	if err := cli.SendText(ctx, sess.Identity, body); err != nil {
		c.app.Logger.Printf("Failed to send confirmation message to %s: %v", sess.Identity, err)
	}
}

// onDeadline fires when the linking deadline elapses. If the request was
// already answered by a code, QR, or connection, this is a no-op; the
// session keeps waiting for the human to finish pairing and the reaper
// eventually collects it.
func (c *Controller) onDeadline(sess *registry.Session, pending *settleOnce) {
	if !pending.Resolve(nil, ErrLinkingTimeout) {
		return
	}

	c.app.Logger.Printf("Linking attempt timed out for %s (session %s)", sess.Identity, sess.SessionID)
	sess.SetLastError(ErrLinkingTimeout)
	sess.TransitionIfActive(registry.StateFailed)
	c.releaseResources(sess)
	c.scheduleSlotFree(sess)
}

// Status returns a snapshot of the identity's session.
func (c *Controller) Status(rawPhone string) (registry.Snapshot, error) {
	identity, err := phone.Normalize(rawPhone)
	if err != nil {
		return registry.Snapshot{}, err
	}

	sess, ok := c.app.Registry.Get(identity)
	if !ok {
		return registry.Snapshot{}, ErrNotFound
	}
	return sess.Snapshot(), nil
}

// ListSessions returns snapshots of every registered session.
func (c *Controller) ListSessions() []registry.Snapshot {
	return c.app.Registry.Snapshots()
}

// Disconnect synchronously tears down the identity's session. With wipe,
// the persisted credential and metadata records are deleted too; a plain
// disconnect preserves them for reconnection.
func (c *Controller) Disconnect(rawPhone string, wipe bool) error {
	identity, err := phone.Normalize(rawPhone)
	if err != nil {
		return err
	}

	sess, ok := c.app.Registry.Get(identity)
	if !ok {
		return ErrNotFound
	}

	c.app.Logger.Printf("Disconnecting session %s for %s (wipe=%v)", sess.SessionID, identity, wipe)

	sess.SetState(registry.StateDisconnected)
	c.releaseResources(sess)
	c.app.Registry.Remove(identity, sess.SessionID)

	if wipe {
		if err := c.app.Store.DeleteCredential(identity); err != nil {
			c.app.Logger.Printf("Failed to delete credentials for %s: %v", identity, err)
		}
		if err := c.app.Store.DeleteMetadata(identity); err != nil {
			c.app.Logger.Printf("Failed to delete metadata for %s: %v", identity, err)
		}
		if err := backend.RemoveDeviceStore(c.app.Config.DevicesDir(), identity); err != nil {
			c.app.Logger.Printf("Failed to remove device store for %s: %v", identity, err)
		}
	}

	return nil
}

// Reconnect starts a linking attempt for an identity that already has a
// persisted credential record. The registered device store resumes the
// prior session, so no new pairing code is normally needed.
func (c *Controller) Reconnect(rawPhone string) (*LinkResult, error) {
	identity, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}

	if _, err := c.app.Store.GetCredential(identity); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return c.StartLinking(identity, MethodPairCode)
}

// Restart supersedes an identity's current session in one call: whatever
// exists is torn down, then a fresh linking attempt begins.
func (c *Controller) Restart(rawPhone, method string) (*LinkResult, error) {
	identity, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}

	if err := c.Disconnect(identity, false); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return c.StartLinking(identity, method)
}

// Reap removes sessions older than the retention window, tearing down their
// backend handles and directories. Persisted credential records are never
// touched; they exist to support reconnection.
func (c *Controller) Reap(retention time.Duration) {
	cutoff := time.Now().Add(-retention)

	for _, snap := range c.app.Registry.Snapshots() {
		if snap.CreatedAt.After(cutoff) {
			continue
		}

		sess, ok := c.app.Registry.Get(snap.Identity)
		if !ok || sess.SessionID != snap.SessionID {
			continue
		}

		c.app.Logger.Printf("Reaping stale session %s for %s (age %s)",
			snap.SessionID, snap.Identity, time.Since(snap.CreatedAt).Round(time.Second))

		sess.SetState(registry.StateDisconnected)
		c.releaseResources(sess)
		c.app.Registry.Remove(snap.Identity, snap.SessionID)
	}
}

// Shutdown destroys every live backend handle. Called on process exit.
func (c *Controller) Shutdown() {
	for _, snap := range c.app.Registry.Snapshots() {
		sess, ok := c.app.Registry.Get(snap.Identity)
		if !ok {
			continue
		}
		if h := sess.Handle(); h != nil {
			h.Destroy()
		}
	}
	c.app.Logger.Printf("All backend handles destroyed")
}

// releaseResources destroys the backend handle (idempotent) and releases
// the session's directories. Safe to call on every exit path.
func (c *Controller) releaseResources(sess *registry.Session) {
	if h := sess.Handle(); h != nil {
		h.Destroy()
	}
	c.arena.Release(sess.SessionID)
}

// scheduleSlotFree frees the registry slot after the failed-session grace
// period, using the remove-if-matching primitive so a superseding session
// is never removed by mistake.
func (c *Controller) scheduleSlotFree(sess *registry.Session) {
	identity, sessionID := sess.Identity, sess.SessionID
	time.AfterFunc(c.app.Config.FailedGrace, func() {
		c.app.Registry.Remove(identity, sessionID)
	})
}

// recoverSession converts a panic in a session goroutine into a failed
// session instead of a crashed process.
func (c *Controller) recoverSession(sess *registry.Session, pending *settleOnce) {
	if r := recover(); r != nil {
		c.app.Logger.Printf("Panic in session %s for %s: %v", sess.SessionID, sess.Identity, r)
		err := &InitError{Err: fmt.Errorf("internal session failure: %v", r)}
		sess.SetLastError(err)
		sess.TransitionIfActive(registry.StateFailed)
		pending.Resolve(nil, err)
		c.releaseResources(sess)
		c.scheduleSlotFree(sess)
	}
}
