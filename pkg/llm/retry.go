package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig parameterizes WithRetry's retry-with-backoff behavior.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry, if set, is called before each retry attempt (attempt is
	// 1-indexed, delay is what the caller is about to sleep).
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig applies a handful of retries with capped exponential
// backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
	}
}

// WithRetry runs fn, retrying on retryable *Error results with exponential
// backoff and full jitter, up to cfg.MaxRetries additional attempts.
// Non-retryable errors (auth, bad request) and context cancellation abort
// immediately.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	delay := cfg.InitialDelay
	if delay <= 0 {
		delay = DefaultRetryConfig().InitialDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultRetryConfig().MaxDelay
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var lerr *Error
		if !errors.As(err, &lerr) || !lerr.Retryable() {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := jitter(delay)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, wait, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return lastErr
}

// jitter applies full jitter: a uniform random duration in [0, d).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)))
}
