package scheduler

import (
	"context"
	"sync"
	"time"

	"PolicyRadar/internal/ports"
)

// IntervalScheduler drives the daily pipeline with a fixed-interval ticker.
// The first run fires immediately on Start.
type IntervalScheduler struct {
	interval time.Duration
	loc      *time.Location

	mu   sync.Mutex
	stop chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler firing every interval, reporting
// trigger times in loc.
func NewIntervalScheduler(interval time.Duration, loc *time.Location) *IntervalScheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if loc == nil {
		loc = time.Local
	}
	return &IntervalScheduler{interval: interval, loc: loc}
}

// Start begins ticking. Calling Start twice without Stop is a no-op.
func (c *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}

	// The goroutine captures the channel so it never re-reads the field
	// Stop mutates.
	stop := make(chan struct{})
	c.stop = stop
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		job(time.Now().In(c.loc))
		for {
			select {
			case t := <-ticker.C:
				job(t.In(c.loc))
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine. Safe to call concurrently and repeatedly.
func (c *IntervalScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return nil
	}
	close(c.stop)
	c.stop = nil
	return nil
}
