package messaging

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/neekaru/whatsapp-linker/internal/app"
	"github.com/neekaru/whatsapp-linker/internal/phone"
)

// Handlers contains HTTP handlers for messaging
type Handlers struct {
	app     *app.App
	service *Service
}

// NewHandlers creates a new messaging handlers instance
func NewHandlers(application *app.App) *Handlers {
	return &Handlers{
		app:     application,
		service: NewService(application),
	}
}

// SendMessageHandler sends a text message from an identity's connected
// session
func (h *Handlers) SendMessageHandler(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "Invalid request body"})
		return
	}
	if req.To == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "to and message are required"})
		return
	}

	err := h.service.SendText(c.Param("identity"), req.To, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, phone.ErrInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": err.Error()})
		case errors.Is(err, ErrNotConnected):
			c.JSON(http.StatusBadRequest, gin.H{"error": "NotConnected", "details": "Session is not connected"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "SendFailed", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Message sent successfully"})
}
