// Package view assembles one page from its identity, roster, submission and
// countdown components and projects them into a single render state.
package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/rsvp/internal/adapters/auth"
	"github.com/okian/rsvp/internal/domain/countdown"
	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/internal/page/bootstrap"
	"github.com/okian/rsvp/internal/page/rostersync"
	"github.com/okian/rsvp/internal/page/submission"
	"github.com/okian/rsvp/pkg/logger"
)

// ErrClosed is returned by operations on a disposed page.
var ErrClosed = errors.New("page closed")

// Phase selects which part of the page is shown.
type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseForm      Phase = "form"
	PhaseSubmitted Phase = "submitted"
)

// Event describes the gathering being counted down to.
type Event struct {
	Title string    `json:"title"`
	At    time.Time `json:"at"`
}

// Backend is the shared collection the page reads and writes.
type Backend interface {
	rostersync.Subscriber
	submission.Creator
}

// State is everything needed to render the page at one instant.
type State struct {
	Phase          Phase               `json:"phase"`
	Identity       *model.Identity     `json:"identity,omitempty"`
	Draft          model.Draft         `json:"draft"`
	Submission     string              `json:"submission"`
	RecordID       string              `json:"recordId,omitempty"`
	Roster         []model.Record      `json:"roster"`
	TotalAttendees int                 `json:"totalAttendees"`
	Countdown      countdown.Breakdown `json:"countdown"`
	Event          Event               `json:"event"`
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	log          logger.Logger
	now          func() time.Time
	tickInterval time.Duration
}

// WithLogger sets the logger shared by the page components.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithNow overrides the wall clock for the countdown and createdAt.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTickInterval changes how often the countdown re-evaluates.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tickInterval = d
		}
	}
}

// Controller owns the lifetime of one page.
type Controller struct {
	event     Event
	log       logger.Logger
	bootstrap *bootstrap.Bootstrap
	roster    *rostersync.Sync
	pipeline  *submission.Pipeline
	clock     *countdown.Clock

	mu      sync.Mutex
	updates map[uint64]chan struct{}
	nextSub uint64
	opened  bool
	closed  bool
}

// New wires a page. Nothing runs until Open.
func New(cfg bootstrap.Config, authSvc auth.Service, backend Backend, event Event, opts ...Option) *Controller {
	o := options{
		log:          logger.Nop(),
		now:          time.Now,
		tickInterval: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Controller{
		event:   event,
		log:     o.log,
		updates: make(map[uint64]chan struct{}),
	}
	c.bootstrap = bootstrap.New(cfg, authSvc, bootstrap.WithLogger(o.log.Named("bootstrap")))
	c.roster = rostersync.New(cfg.AppID, c.bootstrap, backend,
		rostersync.WithLogger(o.log.Named("roster")),
		rostersync.WithOnChange(c.notify))
	c.pipeline = submission.New(cfg.AppID, c.bootstrap, backend,
		submission.WithLogger(o.log.Named("submission")),
		submission.WithNow(o.now),
		submission.WithOnChange(c.notify))
	c.clock = countdown.NewClock(event.At,
		countdown.WithNow(o.now),
		countdown.WithInterval(o.tickInterval),
		countdown.WithOnTick(func(countdown.Breakdown) { c.notify() }))
	return c
}

// Open starts the countdown and the roster watch, then signs in. A sign-in
// failure is returned but the page stays open and keeps showing loading.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = true
	c.mu.Unlock()

	c.clock.Start(context.WithoutCancel(ctx))
	c.roster.Start(ctx)
	c.bootstrap.Watch(func(*model.Identity) { c.notify() })
	if err := c.bootstrap.Start(ctx); err != nil {
		return err
	}
	return nil
}

// State projects the components into a render state.
func (c *Controller) State() State {
	s := State{
		Draft:      c.pipeline.Draft(),
		Countdown:  c.clock.Current(),
		Event:      c.event,
		Submission: c.pipeline.State().String(),
		RecordID:   c.pipeline.RecordID(),
	}
	id, resolved := c.bootstrap.Identity()
	if resolved {
		s.Identity = &id
	}
	r := c.roster.Roster()
	s.Roster = r.Display()
	if s.Roster == nil {
		s.Roster = []model.Record{}
	}
	s.TotalAttendees = r.TotalAttendees()

	switch {
	case !resolved || c.roster.Loading():
		s.Phase = PhaseLoading
	case c.pipeline.State() == submission.Submitted:
		s.Phase = PhaseSubmitted
	default:
		s.Phase = PhaseForm
	}
	return s
}

// UpdateDraft edits the form values.
func (c *Controller) UpdateDraft(fn func(*model.Draft)) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.pipeline.UpdateDraft(fn)
}

// Submit sends the draft.
func (c *Controller) Submit(ctx context.Context) (string, error) {
	if c.isClosed() {
		return "", ErrClosed
	}
	return c.pipeline.Submit(ctx)
}

// Cancel resets the form to its defaults.
func (c *Controller) Cancel() error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.pipeline.ResetDraft()
}

// Updates returns a channel signalled after every state change. Signals
// coalesce. The channel is closed when the page closes or cancel is called.
func (c *Controller) Updates() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.updates[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if ch, ok := c.updates[id]; ok {
			delete(c.updates, id)
			close(ch)
		}
	}
}

// Watchers returns how many Updates subscriptions are open.
func (c *Controller) Watchers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func (c *Controller) notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, ch := range c.updates {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close disposes the page: auth listener, roster subscription and countdown
// timer. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	updates := c.updates
	c.updates = nil
	c.mu.Unlock()

	c.clock.Stop()
	c.roster.Close()
	c.bootstrap.Close()
	for _, ch := range updates {
		close(ch)
	}
	c.log.Debug(context.Background(), "page closed")
}
