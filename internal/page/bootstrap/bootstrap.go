// Package bootstrap establishes the identity of a page.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/okian/rsvp/internal/adapters/auth"
	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
)

var (
	// ErrAuthFailure is returned when the selected sign-in path fails.
	ErrAuthFailure = errors.New("auth failure")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("bootstrap already started")
	// ErrClosed is returned when Start is called after Close.
	ErrClosed = errors.New("bootstrap closed")
)

// Config is parsed once at process start and never modified.
type Config struct {
	AppID        string
	InitialToken string
}

// Option configures a Bootstrap.
type Option func(*Bootstrap)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Bootstrap) {
		if l != nil {
			b.log = l
		}
	}
}

// Bootstrap signs the page in once and broadcasts identity transitions.
type Bootstrap struct {
	cfg  Config
	auth auth.Service
	log  logger.Logger

	mu          sync.Mutex
	identity    *model.Identity
	watchers    map[uint64]func(*model.Identity)
	nextWatcher uint64
	unsubscribe func()
	started     bool
	closed      bool
}

// New creates an unresolved bootstrap.
func New(cfg Config, svc auth.Service, opts ...Option) *Bootstrap {
	b := &Bootstrap{
		cfg:      cfg,
		auth:     svc,
		log:      logger.Nop(),
		watchers: make(map[uint64]func(*model.Identity)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Config returns the immutable configuration.
func (b *Bootstrap) Config() Config {
	return b.cfg
}

// Start installs the auth-state listener and runs exactly one sign-in path:
// the initial token when present, anonymous otherwise. A failure is logged
// and the identity stays unresolved. There is no retry.
func (b *Bootstrap) Start(ctx context.Context) error {
	b.mu.Lock()
	switch {
	case b.closed:
		b.mu.Unlock()
		return ErrClosed
	case b.started:
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.mu.Unlock()

	unsubscribe := b.auth.OnAuthStateChanged(b.onAuthStateChanged)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	b.unsubscribe = unsubscribe
	b.mu.Unlock()

	var (
		id  model.Identity
		err error
	)
	if token := strings.TrimSpace(b.cfg.InitialToken); token != "" {
		id, err = b.auth.SignInWithCustomToken(ctx, token)
	} else {
		id, err = b.auth.SignInAnonymously(ctx)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrAuthFailure, err)
		b.log.Error(ctx, "sign-in failed; identity stays unresolved",
			logger.String("app_id", b.cfg.AppID),
			logger.Error(err))
		return err
	}

	// The listener normally delivers this already; set covers services
	// that only notify asynchronously.
	b.set(&id)
	b.log.Info(ctx, "identity resolved",
		logger.String("uid", id.UID),
		logger.String("provider", string(id.Provider)))
	return nil
}

func (b *Bootstrap) onAuthStateChanged(id *model.Identity) {
	b.set(id)
}

func (b *Bootstrap) set(next *model.Identity) {
	b.mu.Lock()
	if b.closed || sameIdentity(b.identity, next) {
		b.mu.Unlock()
		return
	}
	if next != nil {
		cp := *next
		next = &cp
	}
	b.identity = next
	fns := make([]func(*model.Identity), 0, len(b.watchers))
	for _, fn := range b.watchers {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}

// Identity returns the resolved identity, if any.
func (b *Bootstrap) Identity() (model.Identity, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.identity == nil {
		return model.Identity{}, false
	}
	return *b.identity, true
}

// Watch registers fn for identity transitions. When the identity is already
// resolved fn is called once immediately with it.
func (b *Bootstrap) Watch(fn func(*model.Identity)) (cancel func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextWatcher
	b.nextWatcher++
	b.watchers[id] = fn
	var current *model.Identity
	if b.identity != nil {
		cp := *b.identity
		current = &cp
	}
	b.mu.Unlock()

	if current != nil {
		fn(current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.watchers, id)
			b.mu.Unlock()
		})
	}
}

// Close removes the auth-state listener and drops all watchers.
func (b *Bootstrap) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.watchers = map[uint64]func(*model.Identity){}
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func sameIdentity(a, b *model.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.UID == b.UID && a.Provider == b.Provider
}
