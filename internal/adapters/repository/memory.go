package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/rsvp/internal/domain/model"
)

type partitionData struct {
	byID  map[string]struct{}
	order []model.Record
}

// MemoryCollection keeps records in process memory.
type MemoryCollection struct {
	mu         sync.RWMutex
	partitions map[string]*partitionData
	closed     bool
}

// NewMemoryCollection creates an empty in-memory collection.
func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{partitions: make(map[string]*partitionData)}
}

func (m *MemoryCollection) Insert(ctx context.Context, partition string, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validPartition(partition) {
		return fmt.Errorf("%w: %q", ErrInvalidPartition, partition)
	}
	if !validRecord(rec) {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	p, ok := m.partitions[partition]
	if !ok {
		p = &partitionData{byID: make(map[string]struct{})}
		m.partitions[partition] = p
	}
	if _, exists := p.byID[rec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.ID)
	}
	p.byID[rec.ID] = struct{}{}
	p.order = append(p.order, rec)
	return nil
}

func (m *MemoryCollection) List(ctx context.Context, partition string) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validPartition(partition) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPartition, partition)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	p, ok := m.partitions[partition]
	if !ok {
		return []model.Record{}, nil
	}
	out := make([]model.Record, len(p.order))
	copy(out, p.order)
	return out, nil
}

func (m *MemoryCollection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Collection = (*MemoryCollection)(nil)
