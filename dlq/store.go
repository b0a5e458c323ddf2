package dlq

import (
	"context"
	"time"

	"github.com/xraph/mirror/id"
)

// Store defines the persistence contract for the dead letter queue.
type Store interface {
	// Push records a permanently failed task.
	Push(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries, newest failure first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ returns an entry by ID or ErrNotFound.
	GetDLQ(ctx context.Context, dlqID id.ID) (*Entry, error)

	// DeleteDLQ removes an entry. Returns ErrNotFound if absent.
	DeleteDLQ(ctx context.Context, dlqID id.ID) error

	// Purge deletes entries that failed before the threshold.
	Purge(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of entries.
	CountDLQ(ctx context.Context) (int64, error)
}
