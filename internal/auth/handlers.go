package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/neekaru/whatsapp-linker/internal/app"
	"github.com/neekaru/whatsapp-linker/internal/phone"
)

// Handlers contains HTTP handlers for authentication
type Handlers struct {
	app     *app.App
	service *Service
}

// NewHandlers creates a new authentication handlers instance
func NewHandlers(application *app.App) *Handlers {
	return &Handlers{
		app:     application,
		service: NewService(application),
	}
}

// QRImageHandler renders the pending QR payload for an identity as a PNG
// data URL
func (h *Handlers) QRImageHandler(c *gin.Context) {
	qrBase64, err := h.service.RenderQR(c.Param("identity"))
	if err != nil {
		switch {
		case errors.Is(err, phone.ErrInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "Invalid phone number format"})
		case errors.Is(err, ErrNoQR):
			c.JSON(http.StatusNotFound, gin.H{"error": "NotFound", "details": "No QR code pending for this identity"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"qrcode": "data:image/png;base64," + qrBase64})
}
