// Package ledger records every provider event the mirror has considered.
//
// The ledger is append-only: one entry per event id, ordered by a
// store-assigned sequence number. The newest entry doubles as the catch-up
// cursor, so the cursor can only move forward.
package ledger

import (
	"errors"
	"time"

	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/internal/entity"
)

// Ledger errors.
var (
	ErrNotFound  = errors.New("mirror: ledger entry not found")
	ErrDuplicate = errors.New("mirror: event already recorded")
)

// State is the processing state of a recorded event.
type State string

const (
	// StateApplied means the mirror mutation (or no-op) is committed but the
	// downstream hook has not yet succeeded.
	StateApplied State = "applied"

	// StateDispatched means the hook ran successfully. Terminal.
	StateDispatched State = "dispatched"
)

// Entry is one considered event.
type Entry struct {
	entity.Entity

	ID id.ID `json:"id"`

	// Seq is the insertion position, assigned by the store.
	Seq int64 `json:"seq"`

	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`

	// CursorUpdatedAt is the event's data.updated_at, when it had one.
	CursorUpdatedAt *time.Time `json:"cursor_updated_at,omitempty"`

	// EventCreatedAt is when the provider issued the event.
	EventCreatedAt *time.Time `json:"event_created_at,omitempty"`

	State State `json:"state"`
}

// ListOpts configures pagination for ledger listing. Entries are returned
// newest first.
type ListOpts struct {
	Offset    int
	Limit     int
	EventType string
}
