package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireConflict(t *testing.T) {
	r := New()

	sess, displaced, err := r.TryAcquire("15551234567", "sid-1", false)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Nil(t, displaced)
	assert.Equal(t, StateInitializing, sess.State())

	_, _, err = r.TryAcquire("15551234567", "sid-2", false)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, StateInitializing, conflict.State)

	// A different identity is unaffected.
	_, _, err = r.TryAcquire("15559876543", "sid-3", false)
	assert.NoError(t, err)
}

func TestTryAcquireConcurrent(t *testing.T) {
	r := New()

	const attempts = 32
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := r.TryAcquire("15551234567", "sid", false); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one acquirer may win")
	assert.Equal(t, 1, r.Len())
}

func TestTryAcquireDisplacesTerminal(t *testing.T) {
	r := New()

	old, _, err := r.TryAcquire("15551234567", "sid-old", false)
	require.NoError(t, err)
	old.SetState(StateFailed)

	sess, displaced, err := r.TryAcquire("15551234567", "sid-new", false)
	require.NoError(t, err)
	require.NotNil(t, displaced)
	assert.Equal(t, "sid-old", displaced.SessionID)
	assert.Equal(t, "sid-new", sess.SessionID)
	assert.Equal(t, 1, r.Len())
}

func TestRemoveMatchesSessionID(t *testing.T) {
	r := New()

	_, _, err := r.TryAcquire("15551234567", "sid-1", false)
	require.NoError(t, err)

	assert.False(t, r.Remove("15551234567", "sid-other"), "mismatched session ID must be a no-op")
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Remove("15551234567", "sid-1"))
	assert.Equal(t, 0, r.Len())

	assert.False(t, r.Remove("15551234567", "sid-1"), "absent identity must be a no-op")
}

func TestTransitionIfActive(t *testing.T) {
	r := New()

	sess, _, err := r.TryAcquire("15551234567", "sid-1", false)
	require.NoError(t, err)

	assert.True(t, sess.TransitionIfActive(StateAuthenticated))
	assert.Equal(t, StateAuthenticated, sess.State())

	sess.SetState(StateFailed)
	assert.False(t, sess.TransitionIfActive(StateConnected), "a terminal session must stay terminal")
	assert.Equal(t, StateFailed, sess.State())
}

func TestAdvanceFrom(t *testing.T) {
	r := New()

	sess, _, err := r.TryAcquire("15551234567", "sid-1", false)
	require.NoError(t, err)

	assert.True(t, sess.AdvanceFrom(StateAwaitingScan, StateInitializing))
	assert.Equal(t, StateAwaitingScan, sess.State())

	assert.True(t, sess.AdvanceFrom(StateAwaitingCode, StateInitializing, StateAwaitingScan))
	assert.Equal(t, StateAwaitingCode, sess.State())

	// The source-state guard holds under any current state mismatch.
	assert.False(t, sess.AdvanceFrom(StateAwaitingScan, StateInitializing))
	assert.Equal(t, StateAwaitingCode, sess.State())

	sess.SetState(StateFailed)
	assert.False(t, sess.AdvanceFrom(StateAwaitingCode, StateInitializing, StateAwaitingScan))
	assert.Equal(t, StateFailed, sess.State())
}

func TestSnapshots(t *testing.T) {
	r := New()

	sess, _, err := r.TryAcquire("15551234567", "sid-1", false)
	require.NoError(t, err)
	sess.SetLinkingCode("ABC-123", sess.CreatedAt())

	snaps := r.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "15551234567", snaps[0].Identity)
	assert.Equal(t, "ABC-123", snaps[0].LinkingCode)
	assert.False(t, snaps[0].Connected)

	// Snapshot is a copy; mutating the source doesn't change it.
	sess.SetLinkingCode("XYZ-789", sess.CreatedAt())
	assert.Equal(t, "ABC-123", snaps[0].LinkingCode)
}
