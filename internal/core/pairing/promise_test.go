package pairing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromise_ResolveWakesAllWaiters(t *testing.T) {
	p := NewPromise[string]()

	const waiters = 5
	results := make(chan string, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pin, err := p.Await(context.Background())
			require.NoError(t, err)
			results <- pin
		}()
	}

	assert.False(t, p.Settled())
	assert.True(t, p.Resolve("1234"))
	wg.Wait()
	close(results)

	for pin := range results {
		assert.Equal(t, "1234", pin)
	}
	assert.True(t, p.Settled())
}

func TestPromise_FirstSettlementWins(t *testing.T) {
	p := NewPromise[string]()

	assert.True(t, p.Resolve("1111"))
	assert.False(t, p.Resolve("2222"))
	assert.False(t, p.Cancel(errors.New("too late")))

	pin, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1111", pin)
}

func TestPromise_CancelDefaultsToAborted(t *testing.T) {
	p := NewPromise[string]()
	assert.True(t, p.Cancel(nil))

	_, err := p.Await(context.Background())
	assert.ErrorIs(t, err, domain.ErrPairingAborted)
}

func TestPromise_AwaitHonoursContext(t *testing.T) {
	p := NewPromise[string]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.Settled(), "context expiry must not settle the promise")

	// Still resolvable afterwards.
	assert.True(t, p.Resolve("4321"))
	pin, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4321", pin)
}

func TestPendingList_AddGetRemove(t *testing.T) {
	pending := NewPendingList()

	req := pending.Add("secret-a", "192.168.1.10")
	require.NotNil(t, req.Pin)
	assert.Equal(t, "secret-a", req.PairSecret)

	got, ok := pending.Get("secret-a")
	require.True(t, ok)
	assert.Same(t, req, got)

	pending.Add("secret-b", "192.168.1.11")
	assert.Len(t, pending.List(), 2)

	pending.Remove("secret-a")
	_, ok = pending.Get("secret-a")
	assert.False(t, ok)
}

func TestPendingList_RemoveCancelsUnsettledPin(t *testing.T) {
	pending := NewPendingList()
	req := pending.Add("secret", "10.0.0.1")

	pending.Remove("secret")

	_, err := req.Pin.Await(context.Background())
	assert.ErrorIs(t, err, domain.ErrPairingAborted)
}
