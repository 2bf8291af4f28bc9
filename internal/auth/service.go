package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/neekaru/whatsapp-linker/internal/app"
	"github.com/neekaru/whatsapp-linker/internal/phone"
	"github.com/skip2/go-qrcode"
)

// ErrNoQR indicates the session has no unexpired QR payload to render.
var ErrNoQR = errors.New("no QR code pending")

// Service handles authentication-related business logic
type Service struct {
	app *app.App
}

// NewService creates a new authentication service
func NewService(application *app.App) *Service {
	return &Service{app: application}
}

// RenderQR renders the identity's current QR payload as a base64 PNG. The
// payload itself comes from the lifecycle controller; this only draws it.
func (s *Service) RenderQR(rawPhone string) (string, error) {
	identity, err := phone.Normalize(rawPhone)
	if err != nil {
		return "", err
	}

	sess, ok := s.app.Registry.Get(identity)
	if !ok {
		return "", ErrNoQR
	}

	snap := sess.Snapshot()
	if snap.QRPayload == "" || time.Now().After(snap.QRExpiry) {
		return "", ErrNoQR
	}

	qr, err := qrcode.New(snap.QRPayload, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code: %v", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %v", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}
