package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/internal/entity"
	"github.com/xraph/mirror/queue"
)

// taskModel is the JSON representation stored in Redis.
type taskModel struct {
	ID            string        `json:"id"`
	Seq           int64         `json:"seq"`
	Kind          string        `json:"kind"`
	Payload       queue.Payload `json:"payload"`
	State         string        `json:"state"`
	AttemptCount  int           `json:"attempt_count"`
	MaxAttempts   int           `json:"max_attempts"`
	NextAttemptAt time.Time     `json:"next_attempt_at"`
	LastError     string        `json:"last_error"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func toTaskModel(t *queue.Task) *taskModel {
	return &taskModel{
		ID:            t.ID.String(),
		Seq:           t.Seq,
		Kind:          string(t.Kind),
		Payload:       t.Payload,
		State:         string(t.State),
		AttemptCount:  t.AttemptCount,
		MaxAttempts:   t.MaxAttempts,
		NextAttemptAt: t.NextAttemptAt,
		LastError:     t.LastError,
		CompletedAt:   t.CompletedAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func fromTaskModel(m *taskModel) (*queue.Task, error) {
	taskID, err := id.ParseTaskID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse task ID %q: %w", m.ID, err)
	}
	return &queue.Task{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            taskID,
		Seq:           m.Seq,
		Kind:          queue.Kind(m.Kind),
		Payload:       m.Payload,
		State:         queue.State(m.State),
		AttemptCount:  m.AttemptCount,
		MaxAttempts:   m.MaxAttempts,
		NextAttemptAt: m.NextAttemptAt,
		LastError:     m.LastError,
		CompletedAt:   m.CompletedAt,
	}, nil
}

func (s *Store) EnqueueTask(ctx context.Context, t *queue.Task) error {
	seq, err := s.nextSeq(ctx, seqTasks)
	if err != nil {
		return err
	}

	m := toTaskModel(t)
	m.Seq = seq

	if err := s.setEntity(ctx, entityKey(prefixTask, m.ID), m); err != nil {
		return fmt.Errorf("mirror/redis: enqueue task: %w", err)
	}

	score := float64(seq)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zTaskAll, goredis.Z{Score: score, Member: m.ID})
	if t.Open() {
		pipe.ZAdd(ctx, zTaskOpen, goredis.Z{Score: score, Member: m.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror/redis: enqueue task indexes: %w", err)
	}

	t.Seq = seq
	return nil
}

func (s *Store) NextTask(ctx context.Context) (*queue.Task, error) {
	ids, err := s.zPage(ctx, zTaskOpen, false, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("mirror/redis: next task: %w", err)
	}
	if len(ids) == 0 {
		return nil, queue.ErrEmpty
	}
	return s.getTask(ctx, ids[0])
}

func (s *Store) UpdateTask(ctx context.Context, t *queue.Task) error {
	m := toTaskModel(t)
	ok, err := s.replaceEntity(ctx, entityKey(prefixTask, m.ID), m)
	if err != nil {
		return fmt.Errorf("mirror/redis: update task: %w", err)
	}
	if !ok {
		return queue.ErrTaskNotFound
	}

	if t.Open() {
		err = s.rdb.ZAdd(ctx, zTaskOpen, goredis.Z{Score: float64(m.Seq), Member: m.ID}).Err()
	} else {
		err = s.rdb.ZRem(ctx, zTaskOpen, m.ID).Err()
	}
	if err != nil {
		return fmt.Errorf("mirror/redis: update task index: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, taskID id.ID) (*queue.Task, error) {
	return s.getTask(ctx, taskID.String())
}

// ListTasks returns tasks newest first. State and kind filters are applied
// client-side.
func (s *Store) ListTasks(ctx context.Context, opts queue.ListOpts) ([]*queue.Task, error) {
	filtered := opts.State != nil || opts.Kind != ""

	offset, limit := opts.Offset, opts.Limit
	if filtered {
		offset, limit = 0, 0
	}
	ids, err := s.zPage(ctx, zTaskAll, true, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("mirror/redis: list tasks: %w", err)
	}

	result := make([]*queue.Task, 0, len(ids))
	for _, taskID := range ids {
		t, err := s.getTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, queue.ErrTaskNotFound) {
				continue
			}
			return nil, err
		}
		if opts.State != nil && t.State != *opts.State {
			continue
		}
		if opts.Kind != "" && t.Kind != opts.Kind {
			continue
		}
		result = append(result, t)
	}

	if filtered {
		return applyPagination(result, opts.Offset, opts.Limit), nil
	}
	return result, nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zTaskOpen).Result()
	if err != nil {
		return 0, fmt.Errorf("mirror/redis: count pending: %w", err)
	}
	return count, nil
}

func (s *Store) getTask(ctx context.Context, taskID string) (*queue.Task, error) {
	var m taskModel
	if err := s.getEntity(ctx, entityKey(prefixTask, taskID), &m); err != nil {
		if isMissing(err) {
			return nil, queue.ErrTaskNotFound
		}
		return nil, fmt.Errorf("mirror/redis: get task: %w", err)
	}
	return fromTaskModel(&m)
}
