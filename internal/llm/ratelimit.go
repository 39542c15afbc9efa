package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a sliding-window admission gate shared by every
// completion call. Wait blocks until the window has capacity, then records
// the admission; the check-and-record step holds a mutex so concurrent
// callers can never admit more than maxCalls per window.
type RateLimiter struct {
	maxCalls int
	window   time.Duration

	mu    sync.Mutex
	calls []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter builds a limiter admitting maxCalls per window.
func NewRateLimiter(maxCalls int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until an admission slot is free or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, admitted := rl.tryAdmit()
		if admitted {
			return nil
		}
		if err := rl.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryAdmit records the call if the window has capacity; otherwise it
// returns how long until the oldest in-window call expires.
func (rl *RateLimiter) tryAdmit() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	kept := rl.calls[:0]
	for _, t := range rl.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rl.calls = kept

	if len(rl.calls) < rl.maxCalls {
		rl.calls = append(rl.calls, now)
		return 0, true
	}

	wait := rl.window - now.Sub(rl.calls[0])
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
