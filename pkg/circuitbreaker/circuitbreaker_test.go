package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errEngine = errors.New("engine unavailable")

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      50 * time.Millisecond,
		HalfOpenMax:      2,
	}
}

func tripOpen(t *testing.T, b *Breaker) {
	t.Helper()
	for i := 0; i < testConfig().FailureThreshold; i++ {
		err := b.Do(func() error { return errEngine })
		require.ErrorIs(t, err, errEngine)
	}
	require.Equal(t, StateOpen, b.State())
}

func TestClosedPassesThrough(t *testing.T) {
	b := New(testConfig())

	calls := 0
	require.NoError(t, b.Do(func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, b.State())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b := New(testConfig())

	// Failures below the threshold keep the breaker closed.
	require.Error(t, b.Do(func() error { return errEngine }))
	require.Error(t, b.Do(func() error { return errEngine }))
	assert.Equal(t, StateClosed, b.State())

	// A success resets the consecutive count.
	require.NoError(t, b.Do(func() error { return nil }))
	require.Error(t, b.Do(func() error { return errEngine }))
	require.Error(t, b.Do(func() error { return errEngine }))
	assert.Equal(t, StateClosed, b.State())

	require.Error(t, b.Do(func() error { return errEngine }))
	assert.Equal(t, StateOpen, b.State())
}

func TestOpenRejectsWithoutCalling(t *testing.T) {
	b := New(testConfig())
	tripOpen(t, b)

	calls := 0
	err := b.Do(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
}

func TestHalfOpenRecovery(t *testing.T) {
	b := New(testConfig())
	tripOpen(t, b)

	time.Sleep(60 * time.Millisecond)

	// First trial succeeds, breaker is half-open.
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, b.State())

	// Second trial success closes it again.
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(testConfig())
	tripOpen(t, b)

	time.Sleep(60 * time.Millisecond)

	require.ErrorIs(t, b.Do(func() error { return errEngine }), errEngine)
	assert.Equal(t, StateOpen, b.State())

	// Reopened: back to rejecting immediately.
	assert.ErrorIs(t, b.Do(func() error { return nil }), ErrOpen)
}

func TestReset(t *testing.T) {
	b := New(testConfig())
	tripOpen(t, b)

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Do(func() error { return nil }))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
