package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond)
	failing := func() error { return errors.New("downstream error") }

	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, string(StateClosed), cb.GetState())

	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, string(StateOpen), cb.GetState())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenAfterOpenDuration(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("fail") }))
	assert.Equal(t, string(StateOpen), cb.GetState())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.CanExecute())

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, string(StateClosed), cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("fail") }))
	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(context.Background(), func() error { return errors.New("still failing") })
	require.Error(t, err)
	assert.Equal(t, string(StateOpen), cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("fail") }))
	assert.Equal(t, string(StateOpen), cb.GetState())

	cb.Reset()
	assert.Equal(t, string(StateClosed), cb.GetState())
	assert.True(t, cb.CanExecute())
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAndWrapsLastError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 2}, func() error {
		attempts++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, err.Error(), "retry exhausted")
}

func TestRetry_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error { return errors.New("never reached cleanly") })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultRetryConfig_MatchesPolicyBackoff(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 4.0, cfg.BackoffFactor)
}
