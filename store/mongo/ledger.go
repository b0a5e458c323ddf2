package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/mirror/ledger"
)

// AppendEntry inserts a ledger entry. The unique event_id index rejects
// a second entry for the same event.
func (s *Store) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	seq, err := s.nextSeq(ctx, seqLedger)
	if err != nil {
		return err
	}

	m := toLedgerEntryModel(e)
	m.Seq = seq

	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("mirror/mongo: append entry: %w", err)
	}

	e.Seq = seq
	return nil
}

// GetEntry returns the entry for a provider event id.
func (s *Store) GetEntry(ctx context.Context, eventID string) (*ledger.Entry, error) {
	var m ledgerEntryModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"event_id": eventID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("mirror/mongo: get entry: %w", err)
	}

	return fromLedgerEntryModel(&m)
}

// LatestEntry returns the highest-seq entry, optionally restricted to state.
func (s *Store) LatestEntry(ctx context.Context, state ledger.State) (*ledger.Entry, error) {
	return s.edgeEntry(ctx, state, -1)
}

// OldestEntry returns the lowest-seq entry, optionally restricted to state.
func (s *Store) OldestEntry(ctx context.Context, state ledger.State) (*ledger.Entry, error) {
	return s.edgeEntry(ctx, state, 1)
}

func (s *Store) edgeEntry(ctx context.Context, state ledger.State, order int) (*ledger.Entry, error) {
	var m ledgerEntryModel

	filter := bson.M{}
	if state != "" {
		filter["state"] = string(state)
	}

	err := s.mdb.NewFind(&m).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: order}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("mirror/mongo: read ledger edge: %w", err)
	}

	return fromLedgerEntryModel(&m)
}

// SetEntryState moves an entry to state.
func (s *Store) SetEntryState(ctx context.Context, eventID string, state ledger.State) error {
	res, err := s.mdb.NewUpdate((*ledgerEntryModel)(nil)).
		Filter(bson.M{"event_id": eventID}).
		Set("state", string(state)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mirror/mongo: set entry state: %w", err)
	}

	if res.MatchedCount() == 0 {
		return ledger.ErrNotFound
	}

	return nil
}

// ListEntries returns entries newest first.
func (s *Store) ListEntries(ctx context.Context, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	var models []ledgerEntryModel

	filter := bson.M{}
	if opts.EventType != "" {
		filter["event_type"] = opts.EventType
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("mirror/mongo: list entries: %w", err)
	}

	result := make([]*ledger.Entry, 0, len(models))

	for i := range models {
		e, err := fromLedgerEntryModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, e)
	}

	return result, nil
}

// CountEntries returns the number of recorded events.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	count, err := s.mdb.NewFind((*ledgerEntryModel)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("mirror/mongo: count entries: %w", err)
	}

	return count, nil
}
