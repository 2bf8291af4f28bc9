package linker

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neekaru/whatsapp-linker/internal/app"
	"github.com/neekaru/whatsapp-linker/internal/phone"
	"github.com/neekaru/whatsapp-linker/internal/registry"
	"github.com/neekaru/whatsapp-linker/internal/storage"
)

// Handlers contains HTTP handlers for session linking and lifecycle
type Handlers struct {
	app        *app.App
	controller *Controller
}

// NewHandlers creates a new linker handlers instance
func NewHandlers(application *app.App, controller *Controller) *Handlers {
	return &Handlers{
		app:        application,
		controller: controller,
	}
}

// ConnectHandler starts a linking attempt and responds with whichever of
// pairing code, QR payload, or established connection arrives first
func (h *Handlers) ConnectHandler(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "Invalid request body"})
		return
	}
	h.startLinking(c, req)
}

// GeneratePairCodeHandler is the connect endpoint with the method pinned to
// pairing codes
func (h *Handlers) GeneratePairCodeHandler(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "Invalid request body"})
		return
	}
	req.Method = MethodPairCode
	h.startLinking(c, req)
}

func (h *Handlers) startLinking(c *gin.Context, req ConnectRequest) {
	if req.PhoneNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "Phone number is required"})
		return
	}
	if req.Method == "" {
		req.Method = MethodPairCode
	}

	result, err := h.controller.StartLinking(req.PhoneNumber, req.Method)
	if err != nil {
		h.renderLinkError(c, err)
		return
	}
	h.renderLinkResult(c, result)
}

// ReconnectHandler starts a linking attempt for an identity with a
// persisted credential record; the registered device resumes without a new
// pairing code
func (h *Handlers) ReconnectHandler(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "Invalid request body"})
		return
	}
	if req.PhoneNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "Phone number is required"})
		return
	}

	result, err := h.controller.Reconnect(req.PhoneNumber)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "NotFound", "details": "No persisted session for this phone number"})
			return
		}
		h.renderLinkError(c, err)
		return
	}
	h.renderLinkResult(c, result)
}

// RestartHandler supersedes the identity's current session and starts a
// fresh linking attempt in one call
func (h *Handlers) RestartHandler(c *gin.Context) {
	result, err := h.controller.Restart(c.Param("identity"), MethodPairCode)
	if err != nil {
		h.renderLinkError(c, err)
		return
	}
	h.renderLinkResult(c, result)
}

func (h *Handlers) renderLinkResult(c *gin.Context, result *LinkResult) {
	resp := gin.H{
		"success":     true,
		"sessionId":   result.SessionID,
		"phoneNumber": result.Identity,
		"message":     result.Message,
	}
	if result.LinkingCode != "" {
		resp["linkingCode"] = result.LinkingCode
	}
	if result.QRPayload != "" {
		resp["qrPayload"] = result.QRPayload
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) renderLinkError(c *gin.Context, err error) {
	var conflict *registry.ConflictError
	var authFailure *AuthFailureError
	var disconnected *DisconnectedError
	var initErr *InitError

	switch {
	case errors.Is(err, phone.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "Invalid phone number format"})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": "IdentityAlreadyActive", "details": conflict.State.String()})
	case errors.Is(err, ErrLinkingTimeout):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "LinkingTimeout"})
	case errors.Is(err, ErrSessionClosed):
		c.JSON(http.StatusGone, gin.H{"error": "SessionClosed", "details": "Session was torn down before linking completed"})
	case errors.As(err, &disconnected):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "BackendDisconnected", "details": disconnected.Reason})
	case errors.As(err, &authFailure):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "BackendAuthFailure", "details": authFailure.Reason})
	case errors.As(err, &initErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "BackendInitError", "details": initErr.Err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError", "details": err.Error()})
	}
}

// StatusHandler reports the current state of an identity's session. An
// unknown identity is a non-fatal empty result, matching what callers poll
// for after a disconnect
func (h *Handlers) StatusHandler(c *gin.Context) {
	snap, err := h.controller.Status(c.Param("identity"))
	if err != nil {
		if errors.Is(err, phone.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "Invalid phone number format"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"connected": false, "message": "No client found"})
		return
	}

	resp := gin.H{
		"connected":   snap.Connected,
		"state":       snap.State.String(),
		"phoneNumber": snap.Identity,
		"sessionId":   snap.SessionID,
		"createdAt":   snap.CreatedAt.Format(time.RFC3339),
	}
	if snap.LinkingCode != "" {
		resp["linkingCode"] = snap.LinkingCode
		resp["linkingCodeExpired"] = time.Now().After(snap.CodeExpiry)
	}
	if snap.QRPayload != "" {
		resp["qrExpired"] = time.Now().After(snap.QRExpiry)
	}
	if snap.LastError != nil {
		resp["lastError"] = snap.LastError.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// DisconnectHandler synchronously tears down an identity's session. Passing
// wipe=true also deletes the persisted credential record; a plain
// disconnect preserves it for reconnection
func (h *Handlers) DisconnectHandler(c *gin.Context) {
	wipe := c.Query("wipe") == "true"

	err := h.controller.Disconnect(c.Param("identity"), wipe)
	if err != nil {
		if errors.Is(err, phone.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "Invalid phone number format"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "NotFound"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Client disconnected successfully"})
}

// ClientsHandler lists all registered sessions, redacted: no tokens or
// pairing codes
func (h *Handlers) ClientsHandler(c *gin.Context) {
	snaps := h.controller.ListSessions()

	clients := make([]ClientInfo, 0, len(snaps))
	for _, snap := range snaps {
		clients = append(clients, ClientInfo{
			PhoneNumber: snap.Identity,
			SessionID:   snap.SessionID,
			State:       snap.State.String(),
			Connected:   snap.Connected,
			CreatedAt:   snap.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

// CredentialsHandler returns the persisted credential record for an identity
func (h *Handlers) CredentialsHandler(c *gin.Context) {
	h.serveCredential(c)
}

// SessionTokenHandler returns the persisted credential record for an
// identity. Alias kept for callers of the older token endpoint
func (h *Handlers) SessionTokenHandler(c *gin.Context) {
	h.serveCredential(c)
}

func (h *Handlers) serveCredential(c *gin.Context) {
	identity, err := phone.Normalize(c.Param("identity"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ValidationError", "details": "Invalid phone number format"})
		return
	}

	rec, err := h.app.Store.GetCredential(identity)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "NotFound"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "PersistenceError", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rec)
}
