package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Hour, 1)
	failing := errors.New("boom")

	assert.Error(t, cb.Call(func() error { return failing }))
	assert.Equal(t, StateClosed, cb.State())

	assert.Error(t, cb.Call(func() error { return failing }))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Call(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, 1)
	failing := errors.New("boom")

	require.Error(t, cb.Call(func() error { return failing }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenReopensOnFailure(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, 1)
	failing := errors.New("boom")

	require.Error(t, cb.Call(func() error { return failing }))
	time.Sleep(20 * time.Millisecond)

	require.Error(t, cb.Call(func() error { return failing }))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerClosedStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Hour, 1)
	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Call(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
}
