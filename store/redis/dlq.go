package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/internal/entity"
	"github.com/xraph/mirror/queue"
)

// dlqEntryModel is the JSON representation stored in Redis.
type dlqEntryModel struct {
	ID           string        `json:"id"`
	TaskID       string        `json:"task_id"`
	Kind         string        `json:"kind"`
	Payload      queue.Payload `json:"payload"`
	Error        string        `json:"error"`
	AttemptCount int           `json:"attempt_count"`
	FailedAt     time.Time     `json:"failed_at"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func toDLQEntryModel(e *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:           e.ID.String(),
		TaskID:       e.TaskID.String(),
		Kind:         string(e.Kind),
		Payload:      e.Payload,
		Error:        e.Error,
		AttemptCount: e.AttemptCount,
		FailedAt:     e.FailedAt,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse DLQ ID %q: %w", m.ID, err)
	}
	taskID, err := id.ParseTaskID(m.TaskID)
	if err != nil {
		return nil, fmt.Errorf("parse task ID %q: %w", m.TaskID, err)
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           dlqID,
		TaskID:       taskID,
		Kind:         queue.Kind(m.Kind),
		Payload:      m.Payload,
		Error:        m.Error,
		AttemptCount: m.AttemptCount,
		FailedAt:     m.FailedAt,
	}, nil
}

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQEntryModel(entry)
	if err := s.setEntity(ctx, entityKey(prefixDLQ, m.ID), m); err != nil {
		return fmt.Errorf("mirror/redis: push dlq: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, zDLQAll, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID}).Err(); err != nil {
		return fmt.Errorf("mirror/redis: push dlq index: %w", err)
	}
	return nil
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromTime(*opts.To)
	}

	ids, err := s.zRangeByScoreIDs(ctx, zDLQAll, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("mirror/redis: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, ids[i]), &m); err != nil {
			if isMissing(err) {
				continue
			}
			return nil, err
		}
		if opts.Kind != "" && m.Kind != string(opts.Kind) {
			continue
		}
		entry, err := fromDLQEntryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var m dlqEntryModel
	if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID.String()), &m); err != nil {
		if isMissing(err) {
			return nil, dlq.ErrNotFound
		}
		return nil, fmt.Errorf("mirror/redis: get dlq: %w", err)
	}
	return fromDLQEntryModel(&m)
}

func (s *Store) DeleteDLQ(ctx context.Context, dlqID id.ID) error {
	n, err := s.deleteDLQEntry(ctx, dlqID.String())
	if err != nil {
		return fmt.Errorf("mirror/redis: delete dlq: %w", err)
	}
	if n == 0 {
		return dlq.ErrNotFound
	}
	return nil
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zDLQAll, math.Inf(-1), scoreFromTime(before))
	if err != nil {
		return 0, fmt.Errorf("mirror/redis: purge list: %w", err)
	}

	var count int64
	for _, entryID := range ids {
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, entryID), &m); err != nil {
			if isMissing(err) {
				continue
			}
			return count, err
		}
		// The score range is inclusive; purge is strictly before.
		if !m.FailedAt.Before(before) {
			continue
		}
		n, err := s.deleteDLQEntry(ctx, entryID)
		if err != nil {
			return count, fmt.Errorf("mirror/redis: purge: %w", err)
		}
		count += n
	}

	return count, nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDLQAll).Result()
	if err != nil {
		return 0, fmt.Errorf("mirror/redis: count dlq: %w", err)
	}
	return count, nil
}

// deleteDLQEntry removes a DLQ entry and its index entry, returning the
// number of entity keys deleted.
func (s *Store) deleteDLQEntry(ctx context.Context, entryID string) (int64, error) {
	pipe := s.rdb.Pipeline()
	del := pipe.Del(ctx, entityKey(prefixDLQ, entryID))
	pipe.ZRem(ctx, zDLQAll, entryID)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return del.Val(), nil
}
