package model

import (
	"fmt"
	"slices"
	"strings"
)

// Roster is an immutable snapshot of the shared collection.
// A new snapshot always replaces the previous one in full.
type Roster struct {
	records []Record
	total   int
}

// NewRoster builds a roster from a full snapshot. The slice is copied.
func NewRoster(records []Record) *Roster {
	r := &Roster{records: slices.Clone(records)}
	for _, rec := range r.records {
		r.total += rec.Guests
	}
	return r
}

// EmptyRoster is the mirror before any snapshot arrives.
func EmptyRoster() *Roster {
	return &Roster{}
}

// Len returns the number of records.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.records)
}

// TotalAttendees sums guest counts across all records.
func (r *Roster) TotalAttendees() int {
	if r == nil {
		return 0
	}
	return r.total
}

// Records returns a copy of the records in snapshot order.
func (r *Roster) Records() []Record {
	if r == nil {
		return nil
	}
	return slices.Clone(r.records)
}

// Display returns the records most recent first. Ties on createdAt
// fall back to id so the order is stable across snapshots.
func (r *Roster) Display() []Record {
	out := r.Records()
	slices.SortStableFunc(out, func(a, b Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// PartitionPath is the collection path all pages of one application share.
func PartitionPath(appID string) string {
	return fmt.Sprintf("apps/%s/rsvps", appID)
}

// Change tells the fan-out workers a partition needs a fresh snapshot.
// Subscriber is set when only one new subscriber should receive it.
type Change struct {
	Partition  string
	Subscriber string
}
