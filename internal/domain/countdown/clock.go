package countdown

import (
	"context"
	"sync"
	"time"
)

// Option configures a Clock.
type Option func(*Clock)

// WithNow overrides the wall clock, mostly for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) {
		if now != nil {
			c.now = now
		}
	}
}

// WithInterval changes the tick interval (default one second).
func WithInterval(d time.Duration) Option {
	return func(c *Clock) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithOnTick registers a callback invoked after every evaluation.
func WithOnTick(fn func(Breakdown)) Option {
	return func(c *Clock) {
		c.onTick = fn
	}
}

// Clock re-evaluates the breakdown on a recurring timer until stopped.
type Clock struct {
	target   time.Time
	now      func() time.Time
	interval time.Duration
	onTick   func(Breakdown)

	mu      sync.RWMutex
	current Breakdown
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewClock creates a clock counting down to target.
func NewClock(target time.Time, opts ...Option) *Clock {
	c := &Clock{
		target:   target,
		now:      time.Now,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current = Compute(c.target, c.now())
	return c
}

// Target returns the instant being counted down to.
func (c *Clock) Target() time.Time {
	return c.target
}

// Start evaluates once immediately and then on every interval.
// Calling Start on a running clock is a no-op.
func (c *Clock) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.started = true
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.tick()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Stop may race with a pending tick; the context check wins.
				if ctx.Err() != nil {
					return
				}
				c.tick()
			}
		}
	}()
}

func (c *Clock) tick() {
	b := Compute(c.target, c.now())
	c.mu.Lock()
	c.current = b
	c.mu.Unlock()
	if c.onTick != nil {
		c.onTick(b)
	}
}

// Current returns the most recent breakdown.
func (c *Clock) Current() Breakdown {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Stop cancels the timer and waits for the ticking goroutine to exit.
// No tick callback runs after Stop returns.
func (c *Clock) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	cancel()
	<-done
}
