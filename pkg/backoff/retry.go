// Package backoff provides retry policies with exponential backoff.
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// NewRetryPolicy creates a new retry policy with exponential backoff
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    initialDelay,
		MaxDelay:        5 * time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// AttemptDelay returns the deterministic delay for a given zero-based attempt.
// Jitter is applied separately so the schedule itself stays a pure function
// of the attempt number.
func (rp *RetryPolicy) AttemptDelay(attempt int) time.Duration {
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))
	if delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}
	return time.Duration(delay)
}

// delayWithJitter applies the randomization factor to the deterministic delay
func (rp *RetryPolicy) delayWithJitter(attempt int) time.Duration {
	delay := float64(rp.AttemptDelay(attempt))

	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta
		delay = minDelay + (rand.Float64() * (maxDelay - minDelay))
	}

	return time.Duration(delay)
}

// Execute runs a function with the retry policy
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	return rp.ExecuteWithCondition(ctx, fn, func(error) bool { return true })
}

// ExecuteWithCondition runs a function with retry only if condition is met
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt < rp.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		// Don't retry on the last attempt
		if attempt == rp.MaxAttempts-1 {
			break
		}

		delay := rp.delayWithJitter(attempt)

		// Wait with context cancellation
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
			// Continue to next attempt
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", rp.MaxAttempts, lastErr)
}

// ThrottlePolicy returns the policy used for throttled GraphQL calls.
// Deterministic (no jitter) so observed delays are reproducible: 1s, 2s, 4s...
// capped at the ceiling, up to five retries.
func ThrottlePolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     6,
		InitialDelay:    1 * time.Second,
		MaxDelay:        60 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0,
	}
}
