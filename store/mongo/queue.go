package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/queue"
)

// openStates matches tasks that still hold a place in the queue.
var openStates = bson.M{"$in": bson.A{string(queue.StatePending), string(queue.StateRunning)}}

// EnqueueTask records a task at the tail of the queue.
func (s *Store) EnqueueTask(ctx context.Context, t *queue.Task) error {
	seq, err := s.nextSeq(ctx, seqTasks)
	if err != nil {
		return err
	}

	m := toTaskModel(t)
	m.Seq = seq

	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("mirror/mongo: enqueue task: %w", err)
	}

	t.Seq = seq
	return nil
}

// NextTask returns the open task at the head of the queue.
func (s *Store) NextTask(ctx context.Context) (*queue.Task, error) {
	var m taskModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"state": openStates}).
		Sort(bson.D{{Key: "seq", Value: 1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, queue.ErrEmpty
		}
		return nil, fmt.Errorf("mirror/mongo: next task: %w", err)
	}

	return fromTaskModel(&m)
}

// UpdateTask replaces a stored task.
func (s *Store) UpdateTask(ctx context.Context, t *queue.Task) error {
	m := toTaskModel(t)

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mirror/mongo: update task: %w", err)
	}

	if res.MatchedCount() == 0 {
		return queue.ErrTaskNotFound
	}

	return nil
}

// GetTask returns a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.ID) (*queue.Task, error) {
	var m taskModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": taskID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, queue.ErrTaskNotFound
		}
		return nil, fmt.Errorf("mirror/mongo: get task: %w", err)
	}

	return fromTaskModel(&m)
}

// ListTasks returns tasks newest first.
func (s *Store) ListTasks(ctx context.Context, opts queue.ListOpts) ([]*queue.Task, error) {
	var models []taskModel

	filter := bson.M{}
	if opts.State != nil {
		filter["state"] = string(*opts.State)
	}

	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
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
		return nil, fmt.Errorf("mirror/mongo: list tasks: %w", err)
	}

	result := make([]*queue.Task, 0, len(models))

	for i := range models {
		t, err := fromTaskModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, t)
	}

	return result, nil
}

// CountPending returns the number of open tasks.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.mdb.NewFind((*taskModel)(nil)).
		Filter(bson.M{"state": openStates}).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("mirror/mongo: count pending: %w", err)
	}

	return count, nil
}
