// Package repository stores RSVP records by partition.
package repository

import (
	"context"
	"strings"

	"github.com/okian/rsvp/internal/domain/model"
)

// Collection is the shared, multi-writer RSVP store.
type Collection interface {
	// Insert atomically creates rec in partition. Records are never updated,
	// so an existing id yields ErrAlreadyExists and nothing is written.
	Insert(ctx context.Context, partition string, rec model.Record) error

	// List returns the full contents of partition, oldest first.
	List(ctx context.Context, partition string) ([]model.Record, error)

	Close() error
}

func validPartition(partition string) bool {
	return strings.TrimSpace(partition) != "" && !strings.ContainsAny(partition, " \t\n")
}

func validRecord(rec model.Record) bool {
	return strings.TrimSpace(rec.ID) != ""
}
