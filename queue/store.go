package queue

import (
	"context"

	"github.com/xraph/mirror/id"
)

// Store persists queued tasks.
type Store interface {
	// EnqueueTask durably records t and assigns t.Seq.
	EnqueueTask(ctx context.Context, t *Task) error

	// NextTask returns the open task (pending or running) with the lowest
	// Seq, or ErrEmpty.
	NextTask(ctx context.Context) (*Task, error)

	// UpdateTask replaces a stored task.
	UpdateTask(ctx context.Context, t *Task) error

	// GetTask returns a task by ID or ErrTaskNotFound.
	GetTask(ctx context.Context, taskID id.ID) (*Task, error)

	// ListTasks returns tasks newest first.
	ListTasks(ctx context.Context, opts ListOpts) ([]*Task, error)

	// CountPending returns the number of open tasks.
	CountPending(ctx context.Context) (int64, error)
}
