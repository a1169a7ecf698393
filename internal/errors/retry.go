package errors

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (not including initial attempt).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64

	// Jitter adds randomness to delay to prevent thundering herd.
	Jitter bool
}

// DefaultRetryConfig returns sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry executes a function with exponential backoff.
// Non-retryable errors (per IsRetryable) stop the loop immediately; the
// delay between retries grows exponentially, capped at MaxDelay. A
// cancelled context returns the context error at once.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes a function that returns a value with retry logic.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, FromContext(ctx.Err())
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Permanent failures (bad input, 4xx) are not worth repeating.
		if !IsRetryable(err) {
			return zero, err
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		waitDelay := delay
		if cfg.Jitter {
			// delay * (0.5 + rand(0, 0.5))
			jitterFactor := 0.5 + rand.Float64()*0.5
			waitDelay = time.Duration(float64(delay) * jitterFactor)
		}

		select {
		case <-ctx.Done():
			return zero, FromContext(ctx.Err())
		case <-time.After(waitDelay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, Wrap(KindOf(lastErr), lastErr, "failed after %d retries", cfg.MaxRetries)
}
