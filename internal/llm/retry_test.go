package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestRetryPolicySucceedsAfterTransientFailures(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, sleep: noSleep}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, sleep: noSleep}

	sentinel := errors.New("still broken")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want wrapped sentinel", err)
	}
}

func TestRetryPolicyStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	p := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
		sleep:       noSleep,
	}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("err = %v", err)
	}
}

func TestRetryPolicyHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, sleep: noSleep}
	err := p.Do(ctx, func() error {
		t.Fatal("fn must not run with a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Second}

	if d := p.backoff(0); d < 2*time.Second || d > 3*time.Second {
		t.Errorf("backoff(0) = %v, want base plus at most 1s jitter", d)
	}
	if d := p.backoff(4); d != 5*time.Second {
		t.Errorf("backoff(4) = %v, want capped at MaxDelay", d)
	}
}
