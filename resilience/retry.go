package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures bounded exponential backoff. The defaults
// (DefaultRetryConfig) match the propagation policy for transient
// infrastructure errors: an initial attempt plus 3 retries, delayed
// 100ms / 400ms / 1600ms.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the orchestrator's standard retry policy
// for queue and durable-projection operations: an initial attempt plus
// 3 retries, with delays 100ms / 400ms / 1600ms between them.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   4,
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 4.0,
	}
}

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff
// between attempts, stopping early on success or context
// cancellation. The final error is wrapped to signal exhaustion.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
	}

	return fmt.Errorf("retry exhausted after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
