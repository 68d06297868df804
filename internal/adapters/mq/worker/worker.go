// Package worker fans roster snapshots out to subscribers.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
	"github.com/okian/rsvp/pkg/metrics"
)

const poolShutdownTimeout = 10 * time.Second

// Loader reads the full contents of a partition.
type Loader interface {
	List(ctx context.Context, partition string) ([]model.Record, error)
}

// Fanout delivers versioned snapshots to subscribers.
type Fanout interface {
	Wants(c model.Change) bool
	Snapshot(partition string, read func() error) (uint64, error)
	Deliver(c model.Change, version uint64, records []model.Record) int
	Fail(c model.Change, err error) int
}

// Queue defines how workers receive changes.
type Queue interface {
	Dequeue() <-chan model.Change
}

// Processor turns one change into a delivered snapshot.
type Processor struct {
	loader Loader
	fanout Fanout
	logger logger.Logger
}

// NewProcessor creates a processor.
func NewProcessor(loader Loader, fanout Fanout, log logger.Logger) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{loader: loader, fanout: fanout, logger: log}
}

// Process loads the partition and delivers it to the change's targets.
// A load failure is sent to the targets as a terminal error.
func (p *Processor) Process(ctx context.Context, c model.Change) error {
	if !p.fanout.Wants(c) {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.RecordFanoutLatency(float64(time.Since(start).Milliseconds()))
	}()

	var records []model.Record
	version, err := p.fanout.Snapshot(c.Partition, func() error {
		var err error
		records, err = p.loader.List(ctx, c.Partition)
		return err
	})
	if err != nil {
		metrics.RecordErrorByComponent("worker", "load")
		failed := p.fanout.Fail(c, err)
		p.logger.Error(ctx, "snapshot load failed",
			logger.String("partition", c.Partition),
			logger.Int("subscribers_failed", failed),
			logger.Error(err))
		return fmt.Errorf("load %s: %w", c.Partition, err)
	}
	n := p.fanout.Deliver(c, version, records)
	p.logger.Debug(ctx, "snapshot delivered",
		logger.String("partition", c.Partition),
		logger.Uint64("version", version),
		logger.Int("records", len(records)),
		logger.Int("subscribers", n))
	return nil
}

// Worker drains the queue until it is closed or the context ends.
type Worker struct {
	queue     Queue
	processor *Processor
	name      string
	logger    logger.Logger
	done      chan struct{}
}

// NewWorker creates a worker.
func NewWorker(queue Queue, processor *Processor, opts ...Option) *Worker {
	w := &Worker{
		queue:     queue,
		processor: processor,
		name:      "worker",
		logger:    logger.Nop(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes changes until the queue closes or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	changes := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if err := w.processor.Process(ctx, c); err != nil {
				w.logger.Warn(ctx, "change not delivered", logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Pool manages the fan-out workers.
type Pool struct {
	workers []*Worker
	queue   Queue
	logger  logger.Logger

	once sync.Once
}

// NewPool creates workerCount workers. A count below one uses NumCPU.
func NewPool(workerCount int, queue Queue, processor *Processor, log logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	if log == nil {
		log = logger.Nop()
	}
	p := &Pool{
		workers: make([]*Worker, workerCount),
		queue:   queue,
		logger:  log,
	}
	for i := range p.workers {
		p.workers[i] = NewWorker(queue, processor,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(log))
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(err))
			}
		}
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker shutdown: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
