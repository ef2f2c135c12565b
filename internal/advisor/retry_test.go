package advisor

import (
	"context"
	"net/http"
	"testing"
	"time"

	"options-trading-bot/internal/advisor/anthropic"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BackoffBase:       time.Millisecond,
		BackoffCap:        5 * time.Millisecond,
		RateLimitCooldown: 2 * time.Millisecond,
	}
}

func TestRetryTransientBounded(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastPolicy(), "test", func() (string, error) {
		calls++
		return "", &anthropic.Error{Status: http.StatusInternalServerError, Body: "boom"}
	})
	if err == nil {
		t.Fatal("Expected the final error to propagate")
	}
	if calls != 3 {
		t.Errorf("Expected 1 attempt + 2 retries = 3 calls, got %d", calls)
	}
}

func TestRetryTransientEventualSuccess(t *testing.T) {
	calls := 0
	out, err := withRetry(context.Background(), fastPolicy(), "test", func() (string, error) {
		calls++
		if calls < 3 {
			return "", &anthropic.Error{Status: http.StatusBadGateway}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Expected success on the final retry: %v", err)
	}
	if out != "ok" || calls != 3 {
		t.Errorf("Expected ok after 3 calls, got %q after %d", out, calls)
	}
}

func TestRetryRateLimitExactlyOnce(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastPolicy(), "test", func() (string, error) {
		calls++
		return "", &anthropic.Error{Status: http.StatusTooManyRequests}
	})
	if err == nil {
		t.Fatal("Expected the rate limit to propagate after one retry")
	}
	if calls != 2 {
		t.Errorf("Expected exactly one retry after the cooldown, got %d calls", calls)
	}
	if ClassOf(err) != FailRateLimited {
		t.Errorf("Expected rate_limited class, got %s", ClassOf(err))
	}
}

func TestRetryAuthNeverRetried(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastPolicy(), "test", func() (string, error) {
		calls++
		return "", &anthropic.Error{Status: http.StatusUnauthorized, Body: "bad key"}
	})
	if err == nil {
		t.Fatal("Expected the auth error to propagate")
	}
	if calls != 1 {
		t.Errorf("Auth errors must not be retried, got %d calls", calls)
	}
	if ClassOf(err) != FailAuth {
		t.Errorf("Expected auth class, got %s", ClassOf(err))
	}
}

func TestRetrySchemaNeverRetried(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastPolicy(), "test", func() (string, error) {
		calls++
		return "", newSchemaError("bad payload", nil)
	})
	if err == nil {
		t.Fatal("Expected the schema error to propagate")
	}
	if calls != 1 {
		t.Errorf("Schema errors must not be retried, got %d calls", calls)
	}
}

func TestRetryCancelDuringBackoff(t *testing.T) {
	p := fastPolicy()
	p.BackoffBase = time.Minute
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := withRetry(ctx, p, "test", func() (string, error) {
			return "", &anthropic.Error{Status: http.StatusInternalServerError}
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Retry did not observe cancellation during backoff")
	}
}
