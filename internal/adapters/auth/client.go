package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/metrics"
)

// Service is the identity contract a page signs in against.
type Service interface {
	SignInAnonymously(ctx context.Context) (model.Identity, error)
	SignInWithCustomToken(ctx context.Context, token string) (model.Identity, error)
	// OnAuthStateChanged registers fn for every identity transition.
	// A nil identity means signed out. The returned func unsubscribes.
	OnAuthStateChanged(fn func(*model.Identity)) (unsubscribe func())
}

// Verifier validates custom sign-in tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAnonymous enables or disables anonymous sign-in.
func WithAnonymous(enabled bool) ClientOption {
	return func(c *Client) {
		c.anonymous = enabled
	}
}

// WithClientClock overrides the time source for IssuedAt.
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client holds the auth state of a single page.
type Client struct {
	verifier  Verifier
	anonymous bool
	now       func() time.Time

	mu        sync.Mutex
	current   *model.Identity
	listeners map[uint64]func(*model.Identity)
	nextID    uint64
}

// NewClient creates a signed-out client.
func NewClient(verifier Verifier, opts ...ClientOption) *Client {
	c := &Client{
		verifier:  verifier,
		anonymous: true,
		now:       time.Now,
		listeners: make(map[uint64]func(*model.Identity)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignInAnonymously resolves a fresh random subject.
func (c *Client) SignInAnonymously(ctx context.Context) (model.Identity, error) {
	if !c.anonymous {
		metrics.RecordSignIn(string(model.ProviderAnonymous), "rejected")
		return model.Identity{}, ErrAnonymousDisabled
	}
	if err := ctx.Err(); err != nil {
		return model.Identity{}, err
	}
	id := model.Identity{
		UID:      uuid.NewString(),
		Provider: model.ProviderAnonymous,
		IssuedAt: c.now().UTC(),
	}
	c.set(&id)
	metrics.RecordSignIn(string(id.Provider), "ok")
	return id, nil
}

// SignInWithCustomToken resolves the subject carried by a one-time token.
func (c *Client) SignInWithCustomToken(ctx context.Context, token string) (model.Identity, error) {
	if c.verifier == nil {
		metrics.RecordSignIn(string(model.ProviderCustomToken), "rejected")
		return model.Identity{}, ErrNotConfigured
	}
	claims, err := c.verifier.Verify(ctx, token)
	if err != nil {
		metrics.RecordSignIn(string(model.ProviderCustomToken), "rejected")
		return model.Identity{}, fmt.Errorf("custom token sign-in: %w", err)
	}
	id := model.Identity{
		UID:      claims.Subject,
		Provider: model.ProviderCustomToken,
		IssuedAt: c.now().UTC(),
	}
	c.set(&id)
	metrics.RecordSignIn(string(id.Provider), "ok")
	return id, nil
}

// SignOut clears the identity and notifies listeners with nil.
func (c *Client) SignOut(_ context.Context) {
	c.set(nil)
}

// Current returns the signed-in identity, if any.
func (c *Client) Current() (model.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return model.Identity{}, false
	}
	return *c.current, true
}

// OnAuthStateChanged implements Service.
func (c *Client) OnAuthStateChanged(fn func(*model.Identity)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Listeners returns the number of registered listeners.
func (c *Client) Listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// set swaps the identity and notifies listeners outside the lock when it changed.
func (c *Client) set(next *model.Identity) {
	c.mu.Lock()
	if sameIdentity(c.current, next) {
		c.mu.Unlock()
		return
	}
	if next != nil {
		cp := *next
		next = &cp
	}
	c.current = next
	fns := make([]func(*model.Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}

func sameIdentity(a, b *model.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.UID == b.UID && a.Provider == b.Provider
}
