package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rsvp/internal/adapters/mq/hub"
	"github.com/okian/rsvp/internal/adapters/mq/queue"
	"github.com/okian/rsvp/internal/domain/model"
)

type stubLoader struct {
	mu      sync.Mutex
	records map[string][]model.Record
	err     error
	calls   int
}

func (s *stubLoader) List(_ context.Context, partition string) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.records[partition], nil
}

type sink struct {
	mu        sync.Mutex
	snapshots [][]model.Record
	errs      []error
}

func (s *sink) handle(records []model.Record, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errs = append(s.errs, err)
		return
	}
	s.snapshots = append(s.snapshots, records)
}

func (s *sink) count() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots), len(s.errs)
}

func TestProcessor(t *testing.T) {
	Convey("Given a processor over a hub", t, func() {
		ctx := context.Background()
		part := model.PartitionPath("app")
		loader := &stubLoader{records: map[string][]model.Record{
			part: {{ID: "a", Fields: model.Fields{Guests: 2}}},
		}}
		h := hub.New()
		p := NewProcessor(loader, h, nil)

		Convey("When nobody subscribes", func() {
			So(p.Process(ctx, model.Change{Partition: part}), ShouldBeNil)

			Convey("Then the partition is not loaded", func() {
				So(loader.calls, ShouldEqual, 0)
			})
		})

		Convey("When a subscriber exists", func() {
			s := &sink{}
			h.Add(part, s.handle)
			So(p.Process(ctx, model.Change{Partition: part}), ShouldBeNil)

			Convey("Then it receives the full snapshot", func() {
				n, _ := s.count()
				So(n, ShouldEqual, 1)
				So(s.snapshots[0][0].ID, ShouldEqual, "a")
			})
		})

		Convey("When loading fails", func() {
			s := &sink{}
			h.Add(part, s.handle)
			loader.err = errors.New("db gone")
			err := p.Process(ctx, model.Change{Partition: part})

			Convey("Then the error terminates the subscription", func() {
				So(err, ShouldNotBeNil)
				_, errs := s.count()
				So(errs, ShouldEqual, 1)
				So(h.Count(), ShouldEqual, 0)
			})
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a started pool", t, func() {
		ctx := context.Background()
		part := model.PartitionPath("app")
		loader := &stubLoader{records: map[string][]model.Record{part: {{ID: "a"}}}}
		h := hub.New()
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		pool := NewPool(3, q, NewProcessor(loader, h, nil), nil)
		So(pool.Size(), ShouldEqual, 3)
		pool.Start(ctx)

		s := &sink{}
		h.Add(part, s.handle)

		Convey("When changes are queued", func() {
			for i := 0; i < 5; i++ {
				h.Bump(part)
				So(q.Enqueue(ctx, model.Change{Partition: part}), ShouldBeTrue)
			}

			Convey("Then shutdown drains them", func() {
				So(pool.Shutdown(ctx), ShouldBeNil)
				n, _ := s.count()
				So(n, ShouldBeGreaterThanOrEqualTo, 1)
				So(n, ShouldBeLessThanOrEqualTo, 5)
				So(q.IsClosed(), ShouldBeTrue)
			})
		})

		Convey("When shut down twice", func() {
			So(pool.Shutdown(ctx), ShouldBeNil)
			So(pool.Shutdown(ctx), ShouldBeNil)
		})
	})

	Convey("Given a pool whose context is cancelled", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		q := queue.NewInMemoryQueue()
		pool := NewPool(0, q, NewProcessor(&stubLoader{}, hub.New(), nil), nil)
		pool.Start(ctx)
		cancel()

		Convey("Then workers exit without the queue closing", func() {
			for _, w := range pool.workers {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					t.Fatal("worker did not stop")
				}
			}
			So(pool.Shutdown(context.Background()), ShouldBeNil)
		})
	})
}
