// Package submission sends a page's draft to the shared collection at most
// once per page.
package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
	"github.com/okian/rsvp/pkg/metrics"
)

const tracerName = "github.com/okian/rsvp/internal/page/submission"

var (
	// ErrIdentityUnresolved is returned when no identity has resolved yet.
	ErrIdentityUnresolved = errors.New("identity unresolved")
	// ErrInFlight is returned while a send is outstanding.
	ErrInFlight = errors.New("submission in flight")
	// ErrAlreadySubmitted is returned after a successful send.
	ErrAlreadySubmitted = errors.New("already submitted")
	// ErrSubmissionFailed wraps a rejected create.
	ErrSubmissionFailed = errors.New("submission failed")
)

// State is the pipeline state.
type State int

const (
	Idle State = iota
	Submitting
	Submitted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Creator appends a record to a partition.
type Creator interface {
	Create(ctx context.Context, partition string, fields model.Fields) (string, error)
}

// IdentitySource reports the current identity.
type IdentitySource interface {
	Identity() (model.Identity, bool)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithNow overrides the clock used for createdAt.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithTracer sets the tracer for submit spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithOnChange registers a callback fired after the state or draft changes.
func WithOnChange(fn func()) Option {
	return func(p *Pipeline) {
		p.onChange = fn
	}
}

// Pipeline owns the draft and the idle, submitting and submitted states.
type Pipeline struct {
	partition string
	identity  IdentitySource
	creator   Creator
	log       logger.Logger
	now       func() time.Time
	tracer    trace.Tracer
	onChange  func()

	mu       sync.Mutex
	state    State
	draft    model.Draft
	recordID string
}

// New creates an idle pipeline with an empty draft.
func New(appID string, identity IdentitySource, creator Creator, opts ...Option) *Pipeline {
	p := &Pipeline{
		partition: model.PartitionPath(appID),
		identity:  identity,
		creator:   creator,
		log:       logger.Nop(),
		now:       time.Now,
		draft:     model.NewDraft(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Draft returns a copy of the draft.
func (p *Pipeline) Draft() model.Draft {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draft
}

// RecordID returns the id of the stored record once submitted.
func (p *Pipeline) RecordID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordID
}

// UpdateDraft applies fn to the draft. Edits are refused while a send is
// outstanding or after success.
func (p *Pipeline) UpdateDraft(fn func(*model.Draft)) error {
	p.mu.Lock()
	switch p.state {
	case Submitting:
		p.mu.Unlock()
		return ErrInFlight
	case Submitted:
		p.mu.Unlock()
		return ErrAlreadySubmitted
	}
	fn(&p.draft)
	p.mu.Unlock()
	p.changed()
	return nil
}

// ResetDraft clears the draft back to its defaults.
func (p *Pipeline) ResetDraft() error {
	return p.UpdateDraft(func(d *model.Draft) { *d = model.NewDraft() })
}

// Submit sends the draft once. On success the pipeline is terminal and the
// draft is discarded. On failure it returns to idle with the draft intact.
func (p *Pipeline) Submit(ctx context.Context) (string, error) {
	ctx, span := p.tracer.Start(ctx, "rsvp.submit",
		trace.WithAttributes(attribute.String("rsvp.partition", p.partition)))
	defer span.End()

	id, resolved := p.identity.Identity()

	p.mu.Lock()
	switch p.state {
	case Submitted:
		p.mu.Unlock()
		metrics.RecordSubmission("rejected")
		return "", ErrAlreadySubmitted
	case Submitting:
		p.mu.Unlock()
		metrics.RecordSubmission("rejected")
		return "", ErrInFlight
	}
	if !resolved {
		p.mu.Unlock()
		metrics.RecordSubmission("rejected")
		return "", ErrIdentityUnresolved
	}
	if err := p.draft.Validate(); err != nil {
		p.mu.Unlock()
		metrics.RecordSubmission("invalid")
		return "", err
	}
	fields := p.draft.Fields(id.UID, p.now())
	p.state = Submitting
	p.mu.Unlock()
	p.changed()

	start := time.Now()
	recordID, err := p.creator.Create(ctx, p.partition, fields)
	metrics.RecordSubmissionLatency(float64(time.Since(start).Milliseconds()))

	p.mu.Lock()
	if err != nil {
		p.state = Idle
		p.mu.Unlock()
		p.changed()

		err = fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		metrics.RecordSubmission("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		p.log.Error(ctx, "rsvp submission failed",
			logger.String("uid", id.UID),
			logger.Error(err))
		return "", err
	}
	p.state = Submitted
	p.recordID = recordID
	p.draft = model.Draft{}
	p.mu.Unlock()
	p.changed()

	metrics.RecordSubmission("submitted")
	span.SetAttributes(attribute.String("rsvp.id", recordID))
	p.log.Info(ctx, "rsvp submitted",
		logger.String("id", recordID),
		logger.String("uid", id.UID),
		logger.Int("guests", fields.Guests))
	return recordID, nil
}

func (p *Pipeline) changed() {
	if p.onChange != nil {
		p.onChange()
	}
}
