package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/internal/entity"
	"github.com/xraph/mirror/observability"
	"github.com/xraph/mirror/queue"
)

// Enqueuer re-admits replayed tasks. *queue.Engine implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind queue.Kind, payload queue.Payload) (*queue.Task, error)
}

// Service manages the dead letter queue.
type Service struct {
	store   Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics keeps the DLQSize gauge in step with pushes, replays and
// purges.
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(svc *Service) { svc.metrics = m }
}

// NewService creates a new DLQ service.
func NewService(store Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// SyncSize sets the DLQSize gauge from the store, for instance after a
// restart.
func (svc *Service) SyncSize(ctx context.Context) error {
	if svc.metrics == nil {
		return nil
	}
	n, err := svc.store.CountDLQ(ctx)
	if err != nil {
		return fmt.Errorf("dlq: count: %w", err)
	}
	svc.metrics.DLQSize.Set(float64(n))
	return nil
}

// PushFailed records a failed task. Implements queue.DLQPusher.
func (svc *Service) PushFailed(ctx context.Context, t *queue.Task) error {
	entry := &Entry{
		Entity:       entity.New(),
		ID:           id.NewDLQID(),
		TaskID:       t.ID,
		Kind:         t.Kind,
		Payload:      t.Payload,
		Error:        t.LastError,
		AttemptCount: t.AttemptCount,
		FailedAt:     time.Now().UTC(),
	}
	if err := svc.store.Push(ctx, entry); err != nil {
		return fmt.Errorf("dlq: push task %s: %w", t.ID, err)
	}
	if svc.metrics != nil {
		svc.metrics.DLQSize.Inc()
	}
	return nil
}

// List returns DLQ entries matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListDLQ(ctx, opts)
}

// Get returns a DLQ entry by ID.
func (svc *Service) Get(ctx context.Context, dlqID id.ID) (*Entry, error) {
	return svc.store.GetDLQ(ctx, dlqID)
}

// Replay enqueues a fresh task with the entry's kind and payload, then
// removes the entry. The new task joins the tail of the queue.
func (svc *Service) Replay(ctx context.Context, dlqID id.ID, enq Enqueuer) (*queue.Task, error) {
	entry, err := svc.store.GetDLQ(ctx, dlqID)
	if err != nil {
		return nil, err
	}

	t, err := enq.Enqueue(ctx, entry.Kind, entry.Payload)
	if err != nil {
		return nil, err
	}

	if err := svc.store.DeleteDLQ(ctx, dlqID); err != nil {
		return nil, err
	}
	if svc.metrics != nil {
		svc.metrics.DLQSize.Dec()
	}

	svc.logger.InfoContext(ctx, "dlq entry replayed", "dlq_id", dlqID, "task_id", t.ID, "kind", t.Kind)
	return t, nil
}

// ReplayBulk replays every entry that failed within [from, to], oldest first.
func (svc *Service) ReplayBulk(ctx context.Context, from, to time.Time, enq Enqueuer) (int64, error) {
	entries, err := svc.store.ListDLQ(ctx, ListOpts{From: &from, To: &to})
	if err != nil {
		return 0, err
	}

	var count int64
	for i := len(entries) - 1; i >= 0; i-- {
		if _, err := svc.Replay(ctx, entries[i].ID, enq); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Purge removes entries that failed before the threshold.
func (svc *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := svc.store.Purge(ctx, before)
	if err != nil {
		return 0, err
	}
	if svc.metrics != nil {
		svc.metrics.DLQSize.Sub(float64(n))
	}
	return n, nil
}

// Count returns the total number of DLQ entries.
func (svc *Service) Count(ctx context.Context) (int64, error) {
	return svc.store.CountDLQ(ctx)
}
