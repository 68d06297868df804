// Package service is the in-process backend the pages sign in against,
// subscribe to and write through.
package service

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/rsvp/internal/adapters/auth"
	"github.com/okian/rsvp/internal/adapters/mq/hub"
	eventqueue "github.com/okian/rsvp/internal/adapters/mq/queue"
	workerpool "github.com/okian/rsvp/internal/adapters/mq/worker"
	"github.com/okian/rsvp/internal/adapters/repository"
	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
	"github.com/okian/rsvp/pkg/metrics"
)

const tracerName = "github.com/okian/rsvp/internal/app"

// Service owns the shared collection and the snapshot fan-out.
type Service struct {
	mu sync.RWMutex

	// Core components
	collection repository.Collection
	hub        *hub.Hub
	queue      eventqueue.Queue
	processor  *workerpool.Processor
	pool       *workerpool.Pool
	issuer     *auth.Issuer

	// Configuration
	workerCount    int
	queueSize      int
	allowAnonymous bool

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
	tracer trace.Tracer
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of fan-out workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the change queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithCollection sets the backing store. The default is in-memory.
func WithCollection(c repository.Collection) Option {
	return func(s *Service) {
		if c != nil {
			s.collection = c
		}
	}
}

// WithIssuer sets the verifier for custom sign-in tokens.
func WithIssuer(i *auth.Issuer) Option {
	return func(s *Service) {
		if i != nil {
			s.issuer = i
		}
	}
}

// WithAnonymousSignIn enables or disables anonymous sign-in for new clients.
func WithAnonymousSignIn(enabled bool) Option {
	return func(s *Service) {
		s.allowAnonymous = enabled
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer used for write spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU(),
		queueSize:      1024,
		allowAnonymous: true,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting rsvp backend...")

	if s.collection == nil {
		s.collection = repository.NewMemoryCollection()
	}
	s.hub = hub.New()
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.processor = workerpool.NewProcessor(s.collection, s.hub, s.logger.Named("fanout"))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.processor, s.logger.Named("fanout"))

	// Workers outlive the caller's context; Stop ends them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "rsvp backend started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains the fan-out queue and closes the collection.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping rsvp backend...")

	var firstErr error
	if err := s.pool.Shutdown(ctx); err != nil {
		firstErr = err
	}
	s.cancel()
	if err := s.collection.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close collection: %w", err)
	}

	s.started = false
	s.logger.Info(ctx, "rsvp backend stopped")
	return firstErr
}

// NewAuthClient returns a fresh, signed-out client for one page.
func (s *Service) NewAuthClient() *auth.Client {
	var verifier auth.Verifier
	if s.issuer != nil {
		verifier = s.issuer
	}
	return auth.NewClient(verifier, auth.WithAnonymous(s.allowAnonymous))
}

// Create atomically appends a record and returns its store-assigned id.
func (s *Service) Create(ctx context.Context, partition string, fields model.Fields) (string, error) {
	ctx, span := s.tracer.Start(ctx, "rsvp.create",
		trace.WithAttributes(attribute.String("rsvp.partition", partition)))
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return "", ErrNotStarted
	}
	if strings.TrimSpace(partition) == "" {
		return "", ErrInvalidPartition
	}

	rec := model.Record{ID: uuid.NewString(), Fields: fields}
	version, err := s.hub.Commit(partition, func() error {
		return s.collection.Insert(ctx, partition, rec)
	})
	if err != nil {
		metrics.RecordRSVPCreateError()
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return "", fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	s.notify(ctx, model.Change{Partition: partition})

	metrics.RecordRSVPCreated()
	span.SetAttributes(attribute.String("rsvp.id", rec.ID), attribute.Int("rsvp.guests", fields.Guests))
	s.logger.Debug(ctx, "rsvp created",
		logger.String("id", rec.ID),
		logger.Uint64("version", version),
		logger.String("partition", partition),
		logger.String("uid", fields.UserID))
	return rec.ID, nil
}

// Subscribe registers a standing subscription on partition. handler gets a
// full snapshot now and after every change, or one terminal error.
func (s *Service) Subscribe(ctx context.Context, partition string, handler func([]model.Record, error)) (unsubscribe func(), err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	if strings.TrimSpace(partition) == "" {
		return nil, ErrInvalidPartition
	}

	id := s.hub.Add(partition, handler)
	s.notify(ctx, model.Change{Partition: partition, Subscriber: id})

	h := s.hub
	var once sync.Once
	return func() {
		once.Do(func() { h.Remove(id) })
	}, nil
}

// notify queues a change, fanning it out inline when the queue is full.
// Must be called with s.mu read-locked.
func (s *Service) notify(ctx context.Context, c model.Change) {
	if s.queue.Enqueue(ctx, c) {
		return
	}
	s.logger.Warn(ctx, "fan-out queue full, delivering inline",
		logger.String("partition", c.Partition))
	_ = s.processor.Process(context.WithoutCancel(ctx), c)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started,
		"workerCount":    s.workerCount,
		"queueSize":      s.queueSize,
		"allowAnonymous": s.allowAnonymous,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len()
		stats["subscribers"] = s.hub.Count()
	}
	return stats
}
