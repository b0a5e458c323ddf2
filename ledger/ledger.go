package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/mirror/event"
	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/internal/entity"
)

// Ledger answers "has this event been seen?" and tracks the cursor.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// New returns a Ledger over store.
func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger}
}

// Seen reports whether eventID was already considered at updatedAt or later.
// When either side carries no timestamp the existence of the entry decides.
func (l *Ledger) Seen(ctx context.Context, eventID string, updatedAt *time.Time) (bool, error) {
	e, err := l.store.GetEntry(ctx, eventID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: lookup %s: %w", eventID, err)
	}

	if updatedAt == nil || e.CursorUpdatedAt == nil {
		return true, nil
	}
	return !e.CursorUpdatedAt.Before(*updatedAt), nil
}

// Cursor returns the id of the newest entry, or "" when the ledger is empty.
func (l *Ledger) Cursor(ctx context.Context) (string, error) {
	return l.cursor(ctx, "")
}

// ResumePoint is where catch-up picks up. Since, when set, takes
// precedence over Cursor.
type ResumePoint struct {
	// Cursor is the id of the newest entry; events after it are unseen.
	Cursor string

	// Since is the creation time of the oldest event whose hook has not
	// been called yet.
	Since *time.Time
}

// Resume returns where catch-up should start so that no event owes a hook
// call afterwards. With no undispatched entry it resumes after the newest
// entry. Otherwise it goes back to the oldest undispatched event, which is
// fetched again and re-dispatched; entries already dispatched come back as
// duplicates. An undispatched entry with no provider timestamp resumes from
// the cold-start horizon, signalled by an empty point.
func (l *Ledger) Resume(ctx context.Context) (ResumePoint, error) {
	e, err := l.store.OldestEntry(ctx, StateApplied)
	if errors.Is(err, ErrNotFound) {
		cursor, err := l.Cursor(ctx)
		return ResumePoint{Cursor: cursor}, err
	}
	if err != nil {
		return ResumePoint{}, fmt.Errorf("ledger: read resume point: %w", err)
	}
	if e.EventCreatedAt == nil {
		return ResumePoint{}, nil
	}
	since := *e.EventCreatedAt
	return ResumePoint{Since: &since}, nil
}

func (l *Ledger) cursor(ctx context.Context, state State) (string, error) {
	e, err := l.store.LatestEntry(ctx, state)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: read cursor: %w", err)
	}
	return e.EventID, nil
}

// Latest returns the newest entry or ErrNotFound.
func (l *Ledger) Latest(ctx context.Context) (*Entry, error) {
	return l.store.LatestEntry(ctx, "")
}

// Get returns the entry for eventID or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, eventID string) (*Entry, error) {
	return l.store.GetEntry(ctx, eventID)
}

// Record appends an applied entry for evt. Recording an event twice returns
// the existing entry.
func (l *Ledger) Record(ctx context.Context, evt *event.Event) (*Entry, error) {
	e := &Entry{
		Entity:    entity.New(),
		ID:        id.NewLedgerEntryID(),
		EventID:   evt.ID,
		EventType: evt.Type,
		State:     StateApplied,
	}
	if t, ok := evt.UpdatedAt(); ok {
		e.CursorUpdatedAt = &t
	}
	if !evt.CreatedAt.IsZero() {
		t := evt.CreatedAt.UTC()
		e.EventCreatedAt = &t
	}

	err := l.store.AppendEntry(ctx, e)
	if errors.Is(err, ErrDuplicate) {
		l.logger.DebugContext(ctx, "ledger entry already present", "event_id", evt.ID)
		return l.store.GetEntry(ctx, evt.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: record %s: %w", evt.ID, err)
	}
	return e, nil
}

// MarkDispatched moves e to StateDispatched.
func (l *Ledger) MarkDispatched(ctx context.Context, e *Entry) error {
	if err := l.store.SetEntryState(ctx, e.EventID, StateDispatched); err != nil {
		return fmt.Errorf("ledger: mark %s dispatched: %w", e.EventID, err)
	}
	e.State = StateDispatched
	return nil
}

// List returns entries newest first.
func (l *Ledger) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return l.store.ListEntries(ctx, opts)
}

// Count returns the number of recorded events.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	return l.store.CountEntries(ctx)
}
