package advisor

import (
	"context"
	"math/rand"
	"time"

	"options-trading-bot/internal/logger"
)

type RetryPolicy struct {
	MaxRetries        int           // transient retries after the first attempt
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	RateLimitCooldown time.Duration
}

func defaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BackoffBase:       time.Second,
		BackoffCap:        30 * time.Second,
		RateLimitCooldown: 60 * time.Second,
	}
}

// withRetry runs fn under the advisory retry policy:
//   - transient failures retry up to MaxRetries times with exponential
//     backoff and 25% jitter, capped at BackoffCap
//   - a rate limit waits out one fixed cooldown and retries exactly once
//   - schema, auth and budget failures return immediately
//
// Sleeps are context-cancellable.
func withRetry(ctx context.Context, p RetryPolicy, op string, fn func() (string, error)) (string, error) {
	transientTries := 0
	rateLimitRetried := false

	for {
		out, err := fn()
		if err == nil {
			return out, nil
		}

		switch class := ClassOf(err); class {
		case FailTransient:
			if transientTries >= p.MaxRetries {
				return "", err
			}
			delay := p.BackoffBase << transientTries
			if delay > p.BackoffCap {
				delay = p.BackoffCap
			}
			delay = jitter(delay, 0.25)
			transientTries++
			logger.Warn(ctx, "Advisory call failed, retrying",
				"operation", op, "attempt", transientTries, "delay", delay.String(), "error", err.Error())
			if err := sleep(ctx, delay); err != nil {
				return "", err
			}

		case FailRateLimited:
			if rateLimitRetried {
				return "", err
			}
			rateLimitRetried = true
			logger.Warn(ctx, "Advisory service rate limited, cooling down",
				"operation", op, "cooldown", p.RateLimitCooldown.String())
			if err := sleep(ctx, p.RateLimitCooldown); err != nil {
				return "", err
			}

		default:
			return "", err
		}
	}
}

func jitter(d time.Duration, frac float64) time.Duration {
	delta := float64(d) * frac
	return d + time.Duration((rand.Float64()*2-1)*delta)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
