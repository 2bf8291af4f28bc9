package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neekaru/whatsapp-linker/internal/app"
	"github.com/neekaru/whatsapp-linker/internal/phone"
	"github.com/neekaru/whatsapp-linker/internal/registry"
)

// ErrNotConnected indicates the identity's session is not in a state that
// can send messages.
var ErrNotConnected = errors.New("session is not connected")

// sendTimeout bounds a single outbound message delivery.
const sendTimeout = 60 * time.Second

// Service handles messaging-related business logic
type Service struct {
	app *app.App
}

// NewService creates a new messaging service
func NewService(application *app.App) *Service {
	return &Service{app: application}
}

// SendText sends a text message from an identity's connected session.
func (s *Service) SendText(rawPhone, to, body string) error {
	identity, err := phone.Normalize(rawPhone)
	if err != nil {
		return err
	}

	sess, ok := s.app.Registry.Get(identity)
	if !ok {
		return fmt.Errorf("session not found")
	}

	handle := sess.Handle()
	if handle == nil || sess.State() != registry.StateConnected || !handle.IsConnected() {
		return ErrNotConnected
	}

	recipient, err := phone.Normalize(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := handle.SendText(ctx, recipient, body); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	s.app.Logger.Printf("Message sent to %s from %s", recipient, identity)
	return nil
}
