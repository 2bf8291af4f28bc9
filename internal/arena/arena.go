package arena

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

const (
	profileDirName = "profile"
	cacheDirName   = "cache"
)

// Dirs are the isolated filesystem paths handed to a backend client.
type Dirs struct {
	ProfileDir string
	CacheDir   string
}

// Arena owns the per-session working directories under a common root,
// indexed by session ID. Allocation and release are paired operations
// driven by the lifecycle controller.
type Arena struct {
	root   string
	grace  time.Duration
	logger *log.Logger
}

// New creates an arena rooted at root. grace delays physical removal on
// Release so a backend process that has not fully exited yet does not lose
// files out from under it.
func New(root string, grace time.Duration, logger *log.Logger) (*Arena, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session root: %w", err)
	}
	return &Arena{root: root, grace: grace, logger: logger}, nil
}

// Allocate creates the profile and cache directories for a session.
// Idempotent: calling it for an existing session is safe.
func (a *Arena) Allocate(sessionID string) (Dirs, error) {
	base := filepath.Join(a.root, sessionID)
	dirs := Dirs{
		ProfileDir: filepath.Join(base, profileDirName),
		CacheDir:   filepath.Join(base, cacheDirName),
	}

	for _, dir := range []string{dirs.ProfileDir, dirs.CacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Dirs{}, fmt.Errorf("failed to create session dir: %w", err)
		}
	}
	return dirs, nil
}

// Release removes a session's directories after the grace delay. Tolerates
// directories that are already gone. Removal failures are logged and
// swallowed; a later ReleaseStale sweep picks the leftovers up.
func (a *Arena) Release(sessionID string) {
	base := filepath.Join(a.root, sessionID)

	remove := func() {
		if err := os.RemoveAll(base); err != nil {
			a.logger.Printf("Failed to remove session dir %s: %v", base, err)
		}
	}

	if a.grace <= 0 {
		remove()
		return
	}
	time.AfterFunc(a.grace, remove)
}

// ReleaseStale removes session directories older than maxAge whose session
// the caller no longer tracks. Used on startup to reclaim directories
// orphaned by a prior process instance.
func (a *Arena) ReleaseStale(maxAge time.Duration, inUse func(sessionID string) bool) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		a.logger.Printf("Failed to scan session root %s: %v", a.root, err)
		return
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() || inUse(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(a.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			a.logger.Printf("Failed to remove stale session dir %s: %v", path, err)
			continue
		}
		a.logger.Printf("Removed stale session dir %s", path)
	}
}
