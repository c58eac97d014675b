// Package resilience provides exponential-backoff-with-jitter retry and a
// circuit breaker, grounded on email-service/app/retry and
// email-service/app/circuitbreaker. Used to wrap the RabbitMQ adapter's
// initial connect attempts and, optionally, Bus.Publish calls.
package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig bounds a retry loop's attempt count and delay growth.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig mirrors the teacher's LoadConfig defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second}
}

// calculateDelay computes the exponential backoff delay for attempt,
// jittered by +/-20% so a fleet of retrying callers doesn't thunder
// together against the same recovering dependency.
func calculateDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(2, float64(attempt)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration((rand.Float64()*0.4 - 0.2) * float64(delay))
	return delay + jitter
}

// Retry runs fn up to cfg.MaxRetries+1 times, sleeping an exponentially
// growing, jittered delay between attempts. It stops early if ctx is
// cancelled during a sleep.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateDelay(attempt-1, cfg)):
			}
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	return fmt.Errorf("resilience: max retries exceeded: %w", lastErr)
}
