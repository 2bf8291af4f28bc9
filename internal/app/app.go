package app

import (
	"log"
	"time"

	"github.com/neekaru/whatsapp-linker/internal/config"
	"github.com/neekaru/whatsapp-linker/internal/registry"
	"github.com/neekaru/whatsapp-linker/internal/storage"
)

// App holds shared application state and resources
type App struct {
	Registry *registry.Registry
	Store    *storage.Store

	Logger    *log.Logger
	Config    *config.Config
	StartTime time.Time // Track startup time for health checks
}

// NewApp creates a new App instance with initialized resources
func NewApp(logger *log.Logger, cfg *config.Config, store *storage.Store) *App {
	return &App{
		Registry:  registry.New(),
		Store:     store,
		Logger:    logger,
		Config:    cfg,
		StartTime: time.Now(),
	}
}
