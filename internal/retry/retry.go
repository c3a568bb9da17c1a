// Package retry implements the bounded exponential backoff applied around
// each pipeline stage's external call.
package retry

import (
	"context"
	"math"
	"time"
)

// Policy is a per-stage retry configuration. The delay after failed attempt
// n (1-based) is min(InitialInterval * BackoffCoefficient^(n-1), MaxInterval).
type Policy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
}

// Interval returns the backoff delay after the given failed attempt.
// Attempts are 1-based; values below 1 are treated as 1.
func (p Policy) Interval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	coefficient := p.BackoffCoefficient
	if coefficient < 1 {
		coefficient = 1
	}
	delay := float64(p.InitialInterval) * math.Pow(coefficient, float64(attempt-1))
	if p.MaxInterval > 0 && delay > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(delay)
}

// Do invokes op until it succeeds or the policy's attempts are exhausted,
// sleeping the computed backoff between attempts. It returns the successful
// value, the number of attempts consumed, and the last error (nil on
// success). Every error is treated as retryable; only exhaustion or context
// cancellation ends the loop early.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, int, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			return zero, attempt, lastErr
		}
		timer := time.NewTimer(p.Interval(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, maxAttempts, lastErr
}
