package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetrySucceedsAfterRetryableErrors(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return NewConnectionError("blip", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetryAbortsOnAuthError(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return NewAuthError("bad key", nil)
	})
	if err == nil {
		t.Fatal("expected auth error to propagate")
	}
	if attempts != 1 {
		t.Fatalf("expected no retries for auth error, got %d attempts", attempts)
	}
}

func TestWithRetryExhaustsAndReturnsLastError(t *testing.T) {
	attempts := 0
	sentinel := NewRateLimitError("slow down", errors.New("429"))
	err := WithRetry(context.Background(), RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) && err != sentinel {
		var lerr *Error
		if !errors.As(err, &lerr) {
			t.Fatalf("expected an *Error, got %v", err)
		}
	}
	if attempts != 3 {
		t.Fatalf("expected MaxRetries+1=3 attempts, got %d", attempts)
	}
}
