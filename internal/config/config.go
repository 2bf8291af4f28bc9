package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
)

// Config holds application configuration
type Config struct {
	ServerPort string
	DataDir    string

	// LinkTimeout is the hard deadline for a linking attempt to produce a
	// code, QR, or connection.
	LinkTimeout time.Duration
	// CodeExpiry is how long an issued pairing code stays valid.
	CodeExpiry time.Duration
	// QRExpiry is how long an issued QR payload stays valid.
	QRExpiry time.Duration
	// ReleaseGrace delays physical removal of session directories so a
	// backend mid-teardown does not lose open files.
	ReleaseGrace time.Duration
	// FailedGrace is how long a failed session stays queryable before its
	// registry slot is freed.
	FailedGrace time.Duration
	// Retention is the maximum session age before the reaper removes it.
	Retention time.Duration
}

// NewConfig creates a new configuration with default values, overridable
// through the environment.
func NewConfig() *Config {
	cfg := &Config{
		ServerPort:   "3000",
		DataDir:      "data",
		LinkTimeout:  120 * time.Second,
		CodeExpiry:   5 * time.Minute,
		QRExpiry:     time.Minute,
		ReleaseGrace: 2 * time.Second,
		FailedGrace:  5 * time.Minute,
		Retention:    4 * time.Hour,
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.ServerPort = port
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	return cfg
}

// SessionsDir is the root for per-session working directories.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// DevicesDir is the root for per-identity device stores. Unlike the session
// directories these survive disconnects and process restarts, so a known
// identity can reconnect without repeating the pairing flow.
func (c *Config) DevicesDir() string {
	return filepath.Join(c.DataDir, "devices")
}

// EnsureDataDir ensures the data directory exists
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// GetCorsConfig returns CORS configuration for the application
func (c *Config) GetCorsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "Content-Type"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	return corsConfig
}
