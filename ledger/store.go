package ledger

import "context"

// Store persists ledger entries.
type Store interface {
	// AppendEntry inserts e and sets e.Seq. Returns ErrDuplicate when an
	// entry with the same EventID exists.
	AppendEntry(ctx context.Context, e *Entry) error

	// GetEntry returns the entry for a provider event id or ErrNotFound.
	GetEntry(ctx context.Context, eventID string) (*Entry, error)

	// LatestEntry returns the entry with the highest Seq, restricted to
	// state unless state is empty, or ErrNotFound.
	LatestEntry(ctx context.Context, state State) (*Entry, error)

	// OldestEntry returns the entry with the lowest Seq, restricted to
	// state unless state is empty, or ErrNotFound.
	OldestEntry(ctx context.Context, state State) (*Entry, error)

	// SetEntryState moves an entry to state.
	SetEntryState(ctx context.Context, eventID string, state State) error

	// ListEntries returns entries newest first.
	ListEntries(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// CountEntries returns the number of recorded events.
	CountEntries(ctx context.Context) (int64, error)
}
