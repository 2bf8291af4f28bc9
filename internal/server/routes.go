package server

import (
	"github.com/neekaru/whatsapp-linker/internal/auth"
	"github.com/neekaru/whatsapp-linker/internal/health"
	"github.com/neekaru/whatsapp-linker/internal/linker"
	"github.com/neekaru/whatsapp-linker/internal/messaging"
)

// SetupRoutes configures all the routes for the application
func (s *Server) SetupRoutes(controller *linker.Controller) {
	// Register health check handlers
	healthHandlers := health.NewHandlers(s.app)
	s.router.GET("/", healthHandlers.RootHandler)
	s.router.GET("/health", healthHandlers.HealthCheckHandler)
	s.router.GET("/health/", healthHandlers.HealthCheckHandlerWithSlash)

	// Register session linking handlers
	linkerHandlers := linker.NewHandlers(s.app, controller)
	s.router.POST("/api/connect", linkerHandlers.ConnectHandler)
	s.router.POST("/api/generate-pair-code", linkerHandlers.GeneratePairCodeHandler)
	s.router.POST("/api/reconnect", linkerHandlers.ReconnectHandler)
	s.router.POST("/api/restart/:identity", linkerHandlers.RestartHandler)
	s.router.GET("/api/status/:identity", linkerHandlers.StatusHandler)
	s.router.DELETE("/api/disconnect/:identity", linkerHandlers.DisconnectHandler)
	s.router.GET("/api/clients", linkerHandlers.ClientsHandler)
	s.router.GET("/api/credentials/:identity", linkerHandlers.CredentialsHandler)
	s.router.GET("/api/session-token/:identity", linkerHandlers.SessionTokenHandler)

	// Register authentication handlers
	authHandlers := auth.NewHandlers(s.app)
	s.router.GET("/api/qr-image/:identity", authHandlers.QRImageHandler)

	// Register messaging handlers
	messagingHandlers := messaging.NewHandlers(s.app)
	s.router.POST("/api/send-message/:identity", messagingHandlers.SendMessageHandler)
}
