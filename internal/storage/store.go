package storage

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/activityd/internal/usage"
)

var (
	// ErrNotFound is returned when a record is missing from storage.
	ErrNotFound = errors.New("storage: record not found")

	// ErrConflict is returned when a new record reuses an existing ID.
	ErrConflict = errors.New("storage: record already exists")
)

// Store represents the root storage interface.
type Store interface {
	Close() error
	Usage() UsageStore
}

// UsageStore persists usage records. It satisfies usage.Repository and
// usage.Pruner.
type UsageStore interface {
	SaveNew(ctx context.Context, record *usage.Record) error
	SaveModified(ctx context.Context, record *usage.Record) error
	Get(ctx context.Context, id string) (*usage.Record, error)
	List(ctx context.Context, filter UsageFilter) ([]usage.Record, error)
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// UsageFilter defines criteria for listing usage records. Zero fields match
// everything. Results are ordered by start time, newest first.
type UsageFilter struct {
	UserID    int64
	Category  usage.Category
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Match reports whether record satisfies the filter, ignoring paging.
func (f UsageFilter) Match(record *usage.Record) bool {
	if f.UserID != 0 && record.UserID != f.UserID {
		return false
	}
	if f.Category != 0 && record.Category != f.Category {
		return false
	}
	if f.StartTime != nil && record.Start.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && !record.Start.Before(*f.EndTime) {
		return false
	}
	return true
}
