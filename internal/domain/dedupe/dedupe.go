// Package dedupe tracks consumed one-time identifiers such as sign-in token ids.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Ledger records consumed ids so each can be used at most once.
type Ledger interface {
	// Consume atomically marks id as used until the given instant.
	// It returns true if id had already been consumed and is still live.
	Consume(ctx context.Context, id string, until time.Time) bool

	Size() int
}

type entry struct {
	id    string
	until time.Time
}

// inMemoryLedger keeps ids in insertion order so the oldest can be evicted
// once maxSize is reached. Entries whose deadline passed are dropped lazily.
type inMemoryLedger struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	now     func() time.Time
}

// NewInMemoryLedger creates an in-memory ledger.
func NewInMemoryLedger(opts ...Option) Ledger {
	l := &inMemoryLedger{
		maxSize: 10000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.seen = make(map[string]*list.Element)
	l.order = list.New()
	return l
}

func (l *inMemoryLedger) Consume(_ context.Context, id string, until time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneExpired(now)

	if el, ok := l.seen[id]; ok {
		if el.Value.(*entry).until.After(now) {
			return true
		}
		l.remove(el)
	}

	if l.maxSize > 0 && len(l.seen) >= l.maxSize {
		l.remove(l.order.Front())
	}
	l.seen[id] = l.order.PushBack(&entry{id: id, until: until})
	return false
}

func (l *inMemoryLedger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// pruneExpired walks from the oldest entry and stops at the first live one.
// Must be called with l.mu held.
func (l *inMemoryLedger) pruneExpired(now time.Time) {
	for el := l.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry).until.After(now) {
			return
		}
		l.remove(el)
		el = next
	}
}

func (l *inMemoryLedger) remove(el *list.Element) {
	if el == nil {
		return
	}
	delete(l.seen, el.Value.(*entry).id)
	l.order.Remove(el)
}
