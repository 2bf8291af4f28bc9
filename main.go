package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/neekaru/whatsapp-linker/internal/app"
	"github.com/neekaru/whatsapp-linker/internal/arena"
	"github.com/neekaru/whatsapp-linker/internal/backend"
	"github.com/neekaru/whatsapp-linker/internal/config"
	"github.com/neekaru/whatsapp-linker/internal/linker"
	"github.com/neekaru/whatsapp-linker/internal/server"
	"github.com/neekaru/whatsapp-linker/internal/storage"
	"github.com/neekaru/whatsapp-linker/pkg/logger"
)

func main() {
	appLogger, err := logger.SetupLogging()
	if err != nil {
		appLogger = logger.SetupFallbackLogger()
	}
	defer logger.CloseLogger()

	cfg := config.NewConfig()
	if err := cfg.EnsureDataDir(); err != nil {
		appLogger.Fatalf("Failed to create data directory: %v", err)
	}

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		appLogger.Fatalf("Failed to initialize persistence store: %v", err)
	}

	sessionArena, err := arena.New(cfg.SessionsDir(), cfg.ReleaseGrace, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to initialize session arena: %v", err)
	}

	application := app.NewApp(appLogger, cfg, store)
	controller := linker.NewController(application, sessionArena, backend.NewWhatsmeowFactory())

	// Reclaim directories orphaned by a prior process instance.
	sessionArena.ReleaseStale(cfg.Retention, func(sessionID string) bool {
		for _, snap := range application.Registry.Snapshots() {
			if snap.SessionID == sessionID {
				return true
			}
		}
		return false
	})

	// Hourly reaper for sessions past the retention window. Persisted
	// credential records are left in place for reconnection.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		controller.Reap(cfg.Retention)
	}); err != nil {
		appLogger.Fatalf("Failed to schedule session reaper: %v", err)
	}
	scheduler.Start()

	srv := server.NewServer(application, cfg)
	srv.SetupRoutes(controller)
	if err := srv.Start(); err != nil {
		appLogger.Fatalf("Failed to start server: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Println("Received shutdown signal")
	scheduler.Stop()
	controller.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
