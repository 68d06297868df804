// Package hub keeps the standing snapshot subscriptions of every partition.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/metrics"
)

// Handler receives a full snapshot, or a terminal error.
type Handler func(records []model.Record, err error)

type subscriber struct {
	id        string
	partition string
	handler   Handler

	// mu serializes deliveries to this subscriber.
	mu        sync.Mutex
	last      uint64
	delivered bool
	closed    atomic.Bool
}

// Hub is the subscriber registry plus per-partition change versions.
//
// Writes go through Commit and loads through Snapshot, so a snapshot tagged
// v holds exactly the commits up to v. A subscriber never receives a
// snapshot older than one it already has.
type Hub struct {
	commitMu sync.RWMutex

	mu          sync.RWMutex
	subs        map[string]*subscriber
	byPartition map[string]map[string]*subscriber
	versions    map[string]uint64
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		subs:        make(map[string]*subscriber),
		byPartition: make(map[string]map[string]*subscriber),
		versions:    make(map[string]uint64),
	}
}

// Add registers handler for partition and returns the subscriber id.
func (h *Hub) Add(partition string, handler Handler) string {
	s := &subscriber{
		id:        uuid.NewString(),
		partition: partition,
		handler:   handler,
	}
	h.mu.Lock()
	h.subs[s.id] = s
	set, ok := h.byPartition[partition]
	if !ok {
		set = make(map[string]*subscriber)
		h.byPartition[partition] = set
	}
	set[s.id] = s
	n := len(h.subs)
	h.mu.Unlock()

	metrics.UpdateActiveSubscribers(n)
	return s.id
}

// Remove unregisters a subscriber. It does not wait for an in-flight
// delivery, so it is safe to call from inside a handler.
func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		s.closed.Store(true)
		delete(h.subs, id)
		if set := h.byPartition[s.partition]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(h.byPartition, s.partition)
			}
		}
	}
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		metrics.UpdateActiveSubscribers(n)
	}
	return ok
}

// Bump advances the partition version after a committed write.
func (h *Hub) Bump(partition string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.versions[partition]++
	return h.versions[partition]
}

// Commit runs write under the commit lock and bumps the partition version
// when it succeeds.
func (h *Hub) Commit(partition string, write func() error) (uint64, error) {
	h.commitMu.Lock()
	defer h.commitMu.Unlock()
	if err := write(); err != nil {
		return h.Version(partition), err
	}
	return h.Bump(partition), nil
}

// Snapshot runs read under the commit lock and returns the version the
// read observed.
func (h *Hub) Snapshot(partition string, read func() error) (uint64, error) {
	h.commitMu.RLock()
	defer h.commitMu.RUnlock()
	v := h.Version(partition)
	return v, read()
}

// Version returns the current partition version.
func (h *Hub) Version(partition string) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.versions[partition]
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Wants reports whether change has any live target.
func (h *Hub) Wants(c model.Change) bool {
	return len(h.targets(c)) > 0
}

func (h *Hub) targets(c model.Change) []*subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c.Subscriber != "" {
		s, ok := h.subs[c.Subscriber]
		if !ok || s.partition != c.Partition {
			return nil
		}
		return []*subscriber{s}
	}
	set := h.byPartition[c.Partition]
	out := make([]*subscriber, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// Deliver hands a snapshot tagged with version to the targets of c.
// It returns how many subscribers received it.
func (h *Hub) Deliver(c model.Change, version uint64, records []model.Record) int {
	delivered := 0
	for _, s := range h.targets(c) {
		if s.deliver(version, records) {
			delivered++
		}
	}
	return delivered
}

// Fail sends err to the targets of c and removes them. Errors are terminal.
func (h *Hub) Fail(c model.Change, err error) int {
	failed := 0
	for _, s := range h.targets(c) {
		if s.fail(err) {
			h.Remove(s.id)
			failed++
		}
	}
	return failed
}

func (s *subscriber) deliver(version uint64, records []model.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	if s.delivered && version <= s.last {
		metrics.RecordSnapshotDropped()
		return false
	}
	s.last = version
	s.delivered = true
	// Each subscriber gets its own slice.
	snapshot := make([]model.Record, len(records))
	copy(snapshot, records)
	s.handler(snapshot, nil)
	metrics.RecordSnapshotDelivered()
	return true
}

func (s *subscriber) fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}
	s.handler(nil, err)
	metrics.RecordSubscriptionError()
	return true
}
