// Package registry keeps the pages currently held open for visitors.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rsvp/internal/page/view"
	"github.com/okian/rsvp/pkg/logger"
	"github.com/okian/rsvp/pkg/metrics"
)

// ErrNotFound is returned for an unknown or expired page id.
var ErrNotFound = errors.New("page not found")

// Factory builds an unopened page for an optional initial sign-in token.
type Factory func(initialToken string) *view.Controller

// Option configures a Registry.
type Option func(*Registry)

// WithIdleTTL closes pages not touched for ttl. Zero disables reaping.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl >= 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

type entry struct {
	page     *view.Controller
	lastSeen time.Time
}

// Registry maps opaque page ids to open pages.
type Registry struct {
	factory Factory
	ttl     time.Duration
	log     logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	pages   map[string]*entry
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an empty registry.
func New(factory Factory, opts ...Option) *Registry {
	r := &Registry{
		factory: factory,
		ttl:     30 * time.Minute,
		log:     logger.Nop(),
		now:     time.Now,
		pages:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates, registers and opens a page. The page is registered even when
// sign-in fails; it then stays in the loading phase and the error is returned
// alongside the id.
func (r *Registry) Open(ctx context.Context, initialToken string) (string, *view.Controller, error) {
	page := r.factory(initialToken)
	id := uuid.NewString()

	r.mu.Lock()
	r.pages[id] = &entry{page: page, lastSeen: r.now()}
	n := len(r.pages)
	r.mu.Unlock()
	metrics.UpdateOpenPages(n)

	err := page.Open(ctx)
	if err != nil {
		r.log.Warn(ctx, "page opened without identity",
			logger.String("page_id", id),
			logger.Error(err))
	}
	return id, page, err
}

// Get returns an open page and marks it as seen.
func (r *Registry) Get(id string) (*view.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pages[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastSeen = r.now()
	return e.page, nil
}

// Close disposes one page.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	e, ok := r.pages[id]
	if ok {
		delete(r.pages, id)
	}
	n := len(r.pages)
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	e.page.Close()
	metrics.UpdateOpenPages(n)
	return nil
}

// CloseAll disposes every page.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pages := r.pages
	r.pages = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range pages {
		e.page.Close()
	}
	metrics.UpdateOpenPages(0)
}

// Len returns the number of open pages.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// Reap closes pages idle for longer than the TTL and returns how many. A page
// with an open update stream counts as active and is kept.
func (r *Registry) Reap(ctx context.Context) int {
	if r.ttl == 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	type candidate struct {
		id string
		e  *entry
	}
	r.mu.Lock()
	var idle []candidate
	for id, e := range r.pages {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, candidate{id: id, e: e})
		}
	}
	r.mu.Unlock()

	var expired []*entry
	for _, c := range idle {
		watched := c.e.page.Watchers() > 0

		r.mu.Lock()
		if cur, ok := r.pages[c.id]; ok && cur == c.e && cur.lastSeen.Before(cutoff) {
			if watched {
				cur.lastSeen = r.now()
			} else {
				delete(r.pages, c.id)
				expired = append(expired, cur)
			}
		}
		r.mu.Unlock()
	}

	for _, e := range expired {
		e.page.Close()
	}
	if len(expired) > 0 {
		metrics.UpdateOpenPages(r.Len())
		r.log.Info(ctx, "idle pages closed", logger.Int("count", len(expired)))
	}
	return len(expired)
}

// Start runs the idle reaper until Stop.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.ttl == 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.started = true
	r.cancel = cancel
	r.done = make(chan struct{})

	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Reap(ctx)
			}
		}
	}(r.done)
}

// Stop halts the reaper and closes every page.
func (r *Registry) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.started, r.cancel, r.done = false, nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	r.CloseAll()
}
