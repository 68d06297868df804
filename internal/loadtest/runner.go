package loadtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rsvp/pkg/logger"
)

// Run executes a complete load run: health check, an observer page,
// concurrent visitors each submitting once, then convergence of the
// observer's roster on every accepted RSVP.
func Run(ctx context.Context, cfg Config, log logger.Logger) (*Stats, error) {
	cfg.normalize()
	if log == nil {
		log = logger.Nop()
	}
	stats := &Stats{Visitors: cfg.Visitors, StartTime: time.Now()}

	log.Info(ctx, "starting rsvp load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("visitors", cfg.Visitors),
		logger.Int("workers", cfg.Workers))

	if err := checkHealth(ctx, cfg); err != nil {
		return stats, err
	}

	observer := newVisitor(cfg.BaseURL, cfg.Timeout)
	if _, err := observer.open(ctx); err != nil {
		return stats, fmt.Errorf("observer: %w", err)
	}
	defer observer.close(context.WithoutCancel(ctx))
	before, err := waitLoaded(ctx, observer, cfg.Settle)
	if err != nil {
		return stats, fmt.Errorf("observer: %w", err)
	}

	var (
		submitted atomic.Int64
		failed    atomic.Int64
		guests    atomic.Int64
	)
	jobs := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				count, err := visit(ctx, cfg)
				if err != nil {
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "visitor failed", logger.Int("visitor", n), logger.Error(err))
					}
					continue
				}
				submitted.Add(1)
				guests.Add(int64(count))
			}
		}()
	}
feed:
	for i := 0; i < cfg.Visitors; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Failed = int(failed.Load())
	stats.ExpectedGuests = before.TotalAttendees + int(guests.Load())
	wantRSVPs := len(before.Roster) + stats.Submitted

	err = converge(ctx, observer, cfg.Settle, func(st pageState) bool {
		stats.ObservedGuests = st.TotalAttendees
		stats.ObservedRSVPs = len(st.Roster)
		return st.TotalAttendees == stats.ExpectedGuests && len(st.Roster) == wantRSVPs
	})
	stats.Duration = time.Since(stats.StartTime)

	log.Info(ctx, "final statistics",
		logger.Int("submitted", stats.Submitted),
		logger.Int("failed", stats.Failed),
		logger.Int("expectedGuests", stats.ExpectedGuests),
		logger.Int("observedGuests", stats.ObservedGuests),
		logger.Duration("duration", stats.Duration))
	return stats, err
}

func checkHealth(ctx context.Context, cfg Config) error {
	v := newVisitor(cfg.BaseURL, cfg.Timeout)
	code, err := v.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, code)
	}
	return nil
}

// visit runs one visitor end to end and returns its guest count.
func visit(ctx context.Context, cfg Config) (int, error) {
	v := newVisitor(cfg.BaseURL, cfg.Timeout)
	if _, err := v.open(ctx); err != nil {
		return 0, err
	}
	defer v.close(context.WithoutCancel(ctx))

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Settle)
	defer cancel()
	if err := v.waitPhase(waitCtx, "form"); err != nil {
		return 0, err
	}
	d := randomDraft()
	if err := v.submit(ctx, d); err != nil {
		return 0, err
	}
	return d.Guests, nil
}

func waitLoaded(ctx context.Context, v *visitor, timeout time.Duration) (pageState, error) {
	var last pageState
	err := converge(ctx, v, timeout, func(st pageState) bool {
		last = st
		return st.Phase != "loading"
	})
	return last, err
}

// converge polls v until done reports true or timeout passes.
func converge(ctx context.Context, v *visitor, timeout time.Duration, done func(pageState) bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if st, err := v.state(ctx); err == nil && done(st) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotConverged, ctx.Err())
		case <-ticker.C:
		}
	}
}
