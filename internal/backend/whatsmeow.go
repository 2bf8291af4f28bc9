package backend

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// eventBuffer is the capacity of a client's outbound event channel. Emission
// never blocks; events past a full buffer are dropped with a log line.
const eventBuffer = 32

// whatsmeowClient wraps a whatsmeow connection behind the Client contract.
type whatsmeowClient struct {
	identity  string
	sessionID string
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *log.Logger

	mu        sync.Mutex
	destroyed bool
	events    chan Event
}

// DeviceStorePath is the sqlite device store for an identity. It lives
// outside the per-session directories so the registered device survives
// disconnects and new linking attempts.
func DeviceStorePath(storeDir, identity string) string {
	return filepath.Join(storeDir, identity+".db")
}

// RemoveDeviceStore deletes an identity's device store, forcing the next
// linking attempt to pair from scratch. Absent files are not an error.
func RemoveDeviceStore(storeDir, identity string) error {
	base := DeviceStorePath(storeDir, identity)
	for _, path := range []string{base, base + "-wal", base + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove device store: %w", err)
		}
	}
	return nil
}

// NewWhatsmeowFactory returns a Factory backed by whatsmeow with a sqlite
// device store keyed by the identity under Options.StoreDir.
func NewWhatsmeowFactory() Factory {
	return func(ctx context.Context, opts Options, logger *log.Logger) (Client, <-chan Event, error) {
		if err := os.MkdirAll(opts.StoreDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create device store dir: %w", err)
		}
		dbPath := DeviceStorePath(opts.StoreDir, opts.Identity)
		dbLogger := waLog.Stdout("Database-"+opts.Identity, "INFO", true)

		container, err := sqlstore.New(ctx, "sqlite3", "file:"+dbPath+"?_foreign_keys=on", dbLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("database error: %w", err)
		}

		deviceStore, err := container.GetFirstDevice(ctx)
		if err != nil {
			container.Close()
			return nil, nil, fmt.Errorf("device error: %w", err)
		}

		store.SetOSInfo("Linux", store.GetWAVersion())
		store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()

		clientLogger := waLog.Stdout("WhatsApp-"+opts.Identity, "INFO", true)
		c := &whatsmeowClient{
			identity:  opts.Identity,
			sessionID: opts.SessionID,
			client:    whatsmeow.NewClient(deviceStore, clientLogger),
			container: container,
			logger:    logger,
			events:    make(chan Event, eventBuffer),
		}

		c.client.AddEventHandler(c.handleEvent)

		if err := c.start(ctx, opts); err != nil {
			c.Destroy()
			return nil, nil, err
		}

		return c, c.events, nil
	}
}

// start connects the client and kicks off the pairing flow appropriate for
// the device's registration state.
func (c *whatsmeowClient) start(ctx context.Context, opts Options) error {
	if c.client.Store.ID != nil {
		// Device already registered, connect resumes the prior session.
		if opts.ResumeToken != "" && opts.ResumeToken != c.client.Store.ID.String() {
			c.logger.Printf("Persisted token for %s does not match the registered device (%s), resuming with the device store", c.identity, c.client.Store.ID)
		} else {
			c.logger.Printf("Device registered for %s, resuming session", c.identity)
		}
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	if opts.ResumeToken != "" {
		c.logger.Printf("Persisted token for %s has no registered device, pairing from scratch", c.identity)
	}

	// Fresh device: the QR channel must be requested before connecting.
	qrChan, err := c.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to create QR channel: %w", err)
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	go c.pumpQR(qrChan)

	if !opts.UseQR {
		go c.requestPairCode(ctx)
	}

	return nil
}

// pumpQR forwards QR codes from whatsmeow to the event channel.
func (c *whatsmeowClient) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.emit(Event{Kind: EventQR, QR: item.Code})
		case "timeout":
			c.emit(Event{Kind: EventError, Err: fmt.Errorf("QR channel timed out")})
		}
	}
}

// requestPairCode asks the server for a phone-number pairing code.
func (c *whatsmeowClient) requestPairCode(ctx context.Context) {
	code, err := c.client.PairPhone(ctx, c.identity, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		c.logger.Printf("Pair code request failed for %s: %v", c.identity, err)
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("pair code request failed: %w", err)})
		return
	}
	c.emit(Event{Kind: EventLinkingCode, Code: code})
}

func (c *whatsmeowClient) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		c.logger.Printf("Pairing succeeded for %s (device %s)", c.identity, e.ID)
		c.emit(Event{Kind: EventAuthenticated})

	case *events.Connected:
		c.logger.Printf("Client %s connected and logged in", c.identity)
		c.emit(Event{Kind: EventReady})

	case *events.PairError:
		c.logger.Printf("Pairing failed for %s: %v", c.identity, e.Error)
		c.emit(Event{Kind: EventAuthFailed, Reason: e.Error.Error()})

	case *events.LoggedOut:
		if e.OnConnect {
			c.logger.Printf("Client %s logged out on connect; reason=%s", c.identity, e.Reason.String())
			c.emit(Event{Kind: EventAuthFailed, Reason: e.Reason.String()})
		} else {
			c.logger.Printf("Client %s logged out (stream error)", c.identity)
			c.emit(Event{Kind: EventDisconnected, Reason: "logged out"})
		}

	case *events.Disconnected:
		c.logger.Printf("Client %s disconnected", c.identity)
		c.emit(Event{Kind: EventDisconnected, Reason: "connection lost"})

	case *events.StreamError:
		c.logger.Printf("Client %s stream error: %v", c.identity, e)
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("stream error: %v", e)})
	}
}

// emit delivers an event without ever blocking the whatsmeow callback
// goroutine. A full buffer drops the event; after Destroy, events are
// discarded since callbacks can still fire during disconnect.
func (c *whatsmeowClient) emit(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	select {
	case c.events <- evt:
	default:
		c.logger.Printf("Event buffer full for %s, dropping %s event", c.identity, evt.Kind)
	}
}

// GetSessionToken returns the registered device ID, which is sufficient to
// resume the session from the on-disk device store.
func (c *whatsmeowClient) GetSessionToken() string {
	if c.client.Store.ID == nil {
		return ""
	}
	return c.client.Store.ID.String()
}

// SendText sends a plain text message to the given chat.
func (c *whatsmeowClient) SendText(ctx context.Context, chatID, body string) error {
	recipient := types.JID{User: chatID, Server: types.DefaultUserServer}

	msg := &waE2E.Message{
		Conversation: proto.String(body),
	}

	_, err := c.client.SendMessage(ctx, recipient, msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// IsConnected reports whether the websocket is live.
func (c *whatsmeowClient) IsConnected() bool {
	return c.client.IsConnected()
}

// Destroy disconnects, closes the device store, and closes the event
// channel. Safe to call more than once.
func (c *whatsmeowClient) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.mu.Unlock()

	c.client.RemoveEventHandlers()
	if c.client.IsConnected() {
		c.client.Disconnect()
	}
	if c.container != nil {
		c.container.Close()
	}
	close(c.events)
	c.logger.Printf("Destroyed backend client for %s (session %s)", c.identity, c.sessionID)
}
