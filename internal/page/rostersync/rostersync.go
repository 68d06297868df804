// Package rostersync mirrors the shared RSVP collection for one page.
package rostersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
)

// ErrSubscriptionFailed marks a subscription that ended with an error.
var ErrSubscriptionFailed = errors.New("roster subscription failed")

// Subscriber opens standing snapshot subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, partition string, handler func([]model.Record, error)) (unsubscribe func(), err error)
}

// IdentitySource reports identity transitions.
type IdentitySource interface {
	Watch(fn func(*model.Identity)) (cancel func())
}

// Option configures a Sync.
type Option func(*Sync)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sync) {
		if l != nil {
			s.log = l
		}
	}
}

// WithOnChange registers a callback fired after the mirror or loading flag changes.
func WithOnChange(fn func()) Option {
	return func(s *Sync) {
		s.onChange = fn
	}
}

// Sync keeps a local roster mirror in step with the shared collection.
//
// It subscribes once identity resolves and drops the subscription when the
// identity goes away or changes. A failed subscription is not retried for
// the same identity.
type Sync struct {
	partition string
	identity  IdentitySource
	sub       Subscriber
	log       logger.Logger
	onChange  func()

	mirror atomic.Pointer[model.Roster]

	mu          sync.Mutex
	ctx         context.Context
	uid         string
	gen         uint64
	unsubscribe func()
	cancelWatch func()
	loading     bool
	failed      bool
	started     bool
	closed      bool
}

// New creates a sync for the application's partition.
func New(appID string, identity IdentitySource, sub Subscriber, opts ...Option) *Sync {
	s := &Sync{
		partition: model.PartitionPath(appID),
		identity:  identity,
		sub:       sub,
		log:       logger.Nop(),
		loading:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mirror.Store(model.EmptyRoster())
	return s
}

// Start begins watching identity. Subscriptions use ctx.
func (s *Sync) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	cancel := s.identity.Watch(s.onIdentity)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancelWatch = cancel
	s.mu.Unlock()
}

func (s *Sync) onIdentity(id *model.Identity) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if id != nil && id.UID == s.uid && (s.unsubscribe != nil || s.failed) {
		s.mu.Unlock()
		return
	}
	old := s.unsubscribe
	s.unsubscribe = nil
	s.gen++
	gen := s.gen
	s.failed = false
	ctx := s.ctx
	if id == nil {
		s.uid = ""
		s.mu.Unlock()
		if old != nil {
			old()
			s.log.Info(ctx, "identity cleared; roster subscription cancelled")
		}
		s.changed()
		return
	}
	// A new user starts from an empty mirror until its first snapshot.
	resubscribe := s.uid != "" || !s.loading
	s.uid = id.UID
	s.loading = true
	s.mirror.Store(model.EmptyRoster())
	s.mu.Unlock()

	if old != nil {
		old()
	}
	if resubscribe {
		s.changed()
	}

	unsubscribe, err := s.sub.Subscribe(ctx, s.partition, func(records []model.Record, err error) {
		s.onSnapshot(gen, records, err)
	})

	s.mu.Lock()
	if s.closed || s.gen != gen || s.failed {
		s.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return
	}
	if err != nil {
		s.failed = true
		s.loading = false
		s.mu.Unlock()
		s.log.Error(ctx, "roster subscription failed",
			logger.String("partition", s.partition),
			logger.Error(fmt.Errorf("%w: %w", ErrSubscriptionFailed, err)))
		s.changed()
		return
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.log.Debug(ctx, "roster subscribed",
		logger.String("partition", s.partition),
		logger.String("uid", id.UID))
}

func (s *Sync) onSnapshot(gen uint64, records []model.Record, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.failed {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	if err != nil {
		s.failed = true
		s.loading = false
		old := s.unsubscribe
		s.unsubscribe = nil
		s.mu.Unlock()
		if old != nil {
			old()
		}
		s.log.Error(ctx, "roster subscription failed",
			logger.String("partition", s.partition),
			logger.Error(fmt.Errorf("%w: %w", ErrSubscriptionFailed, err)))
		s.changed()
		return
	}
	s.mirror.Store(model.NewRoster(records))
	s.loading = false
	s.mu.Unlock()
	s.changed()
}

func (s *Sync) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Roster returns the current mirror. The value is immutable.
func (s *Sync) Roster() *model.Roster {
	return s.mirror.Load()
}

// Loading reports whether neither a snapshot nor an error has arrived yet.
func (s *Sync) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribed reports whether a subscription is currently active.
func (s *Sync) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribe != nil
}

// Failed reports whether the current identity's subscription ended in error.
func (s *Sync) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Close cancels the subscription and the identity watch. Idempotent.
func (s *Sync) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe, cancelWatch := s.unsubscribe, s.cancelWatch
	s.unsubscribe, s.cancelWatch = nil, nil
	s.mu.Unlock()

	if cancelWatch != nil {
		cancelWatch()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
}
