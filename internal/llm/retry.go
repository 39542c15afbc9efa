package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy describes how an external call is retried: how many attempts,
// how the delay grows, and which errors are worth retrying at all. The
// policy is applied explicitly at each call site rather than hidden behind
// a wrapper type.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable reports whether the error is transient. Nil retries
	// everything.
	Retryable func(error) bool

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy mirrors the tuning the analysis pipeline ships with.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Retryable:   IsTransient,
	}
}

// Do runs fn up to MaxAttempts times, sleeping an exponentially growing,
// jittered delay between attempts. Non-retryable errors abort immediately;
// exhausting the attempts returns the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		if err := sleep(ctx, p.backoff(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// backoff computes min(base * 2^attempt + jitter, cap).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	delay += time.Duration(rand.Int63n(int64(time.Second)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
