package arena

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArena(t *testing.T) *Arena {
	t.Helper()
	a, err := New(t.TempDir(), 0, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return a
}

func TestAllocateRelease(t *testing.T) {
	a := newTestArena(t)

	dirs, err := a.Allocate("sid-1")
	require.NoError(t, err)
	assert.DirExists(t, dirs.ProfileDir)
	assert.DirExists(t, dirs.CacheDir)

	// Idempotent allocation returns the same paths.
	again, err := a.Allocate("sid-1")
	require.NoError(t, err)
	assert.Equal(t, dirs, again)

	a.Release("sid-1")
	assert.NoDirExists(t, dirs.ProfileDir)
	assert.NoDirExists(t, dirs.CacheDir)

	// Releasing an absent session is a no-op.
	a.Release("sid-1")
	a.Release("never-allocated")
}

func TestReleaseGraceDelay(t *testing.T) {
	a, err := New(t.TempDir(), 50*time.Millisecond, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	dirs, err := a.Allocate("sid-1")
	require.NoError(t, err)

	a.Release("sid-1")
	assert.DirExists(t, dirs.ProfileDir, "removal must wait out the grace delay")

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dirs.ProfileDir)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}

func TestReleaseStale(t *testing.T) {
	root := t.TempDir()
	a, err := New(root, 0, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	_, err = a.Allocate("sid-live")
	require.NoError(t, err)
	_, err = a.Allocate("sid-orphan")
	require.NoError(t, err)

	// Age the orphan past the cutoff.
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "sid-orphan"), old, old))

	a.ReleaseStale(time.Hour, func(id string) bool { return id == "sid-live" })

	assert.DirExists(t, filepath.Join(root, "sid-live"))
	assert.NoDirExists(t, filepath.Join(root, "sid-orphan"))
}
