package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/internal/entity"
	"github.com/xraph/mirror/ledger"
)

// ledgerEntryModel is the JSON representation stored in Redis.
type ledgerEntryModel struct {
	ID              string     `json:"id"`
	Seq             int64      `json:"seq"`
	EventID         string     `json:"event_id"`
	EventType       string     `json:"event_type"`
	CursorUpdatedAt *time.Time `json:"cursor_updated_at,omitempty"`
	EventCreatedAt  *time.Time `json:"event_created_at,omitempty"`
	State           string     `json:"state"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toLedgerEntryModel(e *ledger.Entry) *ledgerEntryModel {
	return &ledgerEntryModel{
		ID:              e.ID.String(),
		Seq:             e.Seq,
		EventID:         e.EventID,
		EventType:       e.EventType,
		CursorUpdatedAt: e.CursorUpdatedAt,
		EventCreatedAt:  e.EventCreatedAt,
		State:           string(e.State),
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func fromLedgerEntryModel(m *ledgerEntryModel) (*ledger.Entry, error) {
	entryID, err := id.ParseLedgerEntryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse ledger entry ID %q: %w", m.ID, err)
	}
	return &ledger.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              entryID,
		Seq:             m.Seq,
		EventID:         m.EventID,
		EventType:       m.EventType,
		CursorUpdatedAt: m.CursorUpdatedAt,
		EventCreatedAt:  m.EventCreatedAt,
		State:           ledger.State(m.State),
	}, nil
}

func (s *Store) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	seq, err := s.nextSeq(ctx, seqLedger)
	if err != nil {
		return err
	}

	m := toLedgerEntryModel(e)
	m.Seq = seq

	// SET NX on the event-id key is the uniqueness check.
	ok, err := s.createEntity(ctx, entityKey(prefixLedger, m.EventID), m)
	if err != nil {
		return fmt.Errorf("mirror/redis: append entry: %w", err)
	}
	if !ok {
		return ledger.ErrDuplicate
	}

	score := float64(seq)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zLedgerAll, goredis.Z{Score: score, Member: m.EventID})
	pipe.ZAdd(ctx, zLedgerState+m.State, goredis.Z{Score: score, Member: m.EventID})
	pipe.ZAdd(ctx, zLedgerType+m.EventType, goredis.Z{Score: score, Member: m.EventID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror/redis: append entry indexes: %w", err)
	}

	e.Seq = seq
	return nil
}

func (s *Store) GetEntry(ctx context.Context, eventID string) (*ledger.Entry, error) {
	m, err := s.getLedgerModel(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return fromLedgerEntryModel(m)
}

func (s *Store) LatestEntry(ctx context.Context, state ledger.State) (*ledger.Entry, error) {
	return s.edgeEntry(ctx, state, true)
}

func (s *Store) OldestEntry(ctx context.Context, state ledger.State) (*ledger.Entry, error) {
	return s.edgeEntry(ctx, state, false)
}

// edgeEntry reads the first entry of the seq-ordered index, from the
// newest end when rev is set.
func (s *Store) edgeEntry(ctx context.Context, state ledger.State, rev bool) (*ledger.Entry, error) {
	zKey := zLedgerAll
	if state != "" {
		zKey = zLedgerState + string(state)
	}

	ids, err := s.zPage(ctx, zKey, rev, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("mirror/redis: read ledger edge: %w", err)
	}
	if len(ids) == 0 {
		return nil, ledger.ErrNotFound
	}
	return s.GetEntry(ctx, ids[0])
}

func (s *Store) SetEntryState(ctx context.Context, eventID string, state ledger.State) error {
	m, err := s.getLedgerModel(ctx, eventID)
	if err != nil {
		return err
	}

	prev := m.State
	m.State = string(state)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, entityKey(prefixLedger, eventID), m); err != nil {
		return fmt.Errorf("mirror/redis: set entry state: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZRem(ctx, zLedgerState+prev, eventID)
	pipe.ZAdd(ctx, zLedgerState+m.State, goredis.Z{Score: float64(m.Seq), Member: eventID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror/redis: set entry state indexes: %w", err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	zKey := zLedgerAll
	if opts.EventType != "" {
		zKey = zLedgerType + opts.EventType
	}

	ids, err := s.zPage(ctx, zKey, true, opts.Offset, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("mirror/redis: list entries: %w", err)
	}

	result := make([]*ledger.Entry, 0, len(ids))
	for _, eventID := range ids {
		e, err := s.GetEntry(ctx, eventID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zLedgerAll).Result()
	if err != nil {
		return 0, fmt.Errorf("mirror/redis: count entries: %w", err)
	}
	return count, nil
}

func (s *Store) getLedgerModel(ctx context.Context, eventID string) (*ledgerEntryModel, error) {
	var m ledgerEntryModel
	if err := s.getEntity(ctx, entityKey(prefixLedger, eventID), &m); err != nil {
		if isMissing(err) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("mirror/redis: get entry: %w", err)
	}
	return &m, nil
}
