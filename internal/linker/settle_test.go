package linker

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleOnceFirstResolveWins(t *testing.T) {
	s := newSettleOnce()

	assert.True(t, s.Resolve(&LinkResult{LinkingCode: "ABC-123"}, nil))
	assert.False(t, s.Resolve(&LinkResult{QRPayload: "qr"}, nil))
	assert.False(t, s.Resolve(nil, ErrLinkingTimeout))

	out := <-s.Wait()
	require.NoError(t, out.err)
	assert.Equal(t, "ABC-123", out.result.LinkingCode)
}

func TestSettleOnceConcurrentResolvers(t *testing.T) {
	s := newSettleOnce()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Resolve(&LinkResult{}, nil) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	// Exactly one outcome is delivered.
	<-s.Wait()
	select {
	case out := <-s.Wait():
		t.Fatalf("unexpected second outcome: %+v", out)
	default:
	}
}

func TestSettleOnceErrorOutcome(t *testing.T) {
	s := newSettleOnce()

	assert.True(t, s.Resolve(nil, ErrLinkingTimeout))
	out := <-s.Wait()
	assert.ErrorIs(t, out.err, ErrLinkingTimeout)
	assert.Nil(t, out.result)
}
