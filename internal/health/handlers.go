package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neekaru/whatsapp-linker/internal/app"
	"github.com/neekaru/whatsapp-linker/internal/registry"
)

// Handlers contains HTTP handlers for health checks
type Handlers struct {
	app *app.App
}

// NewHandlers creates a new health handlers instance
func NewHandlers(application *app.App) *Handlers {
	return &Handlers{app: application}
}

// RootHandler handles the root endpoint for Docker health checks
func (h *Handlers) RootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptime":        time.Since(h.app.StartTime).String(),
		"session_count": h.app.Registry.Len(),
		"version":       "1.0.0",
	})
}

// HealthCheckHandler handles the health check endpoint
func (h *Handlers) HealthCheckHandler(c *gin.Context) {
	snaps := h.app.Registry.Snapshots()

	activeCount := 0
	for _, snap := range snaps {
		if snap.State == registry.StateConnected {
			activeCount++
		}
	}

	// Always return 200 OK status
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"uptime":          time.Since(h.app.StartTime).String(),
		"total_sessions":  len(snaps),
		"active_sessions": activeCount,
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

// HealthCheckHandlerWithSlash handles the health check endpoint with trailing slash
func (h *Handlers) HealthCheckHandlerWithSlash(c *gin.Context) {
	h.HealthCheckHandler(c)
}
