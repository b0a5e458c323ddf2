// Package queue is the mirror's admission queue: a durable FIFO of tasks
// executed one at a time by a single worker.
//
// Tasks run in Seq order. A failing task keeps its place at the head of the
// queue until it succeeds or exhausts its attempts, so later tasks never
// overtake it.
package queue

import (
	"errors"
	"time"

	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/internal/entity"
)

// Queue errors.
var (
	ErrTaskFailed   = errors.New("mirror: task failed")
	ErrTaskNotFound = errors.New("mirror: task not found")
	ErrEmpty        = errors.New("mirror: queue empty")
)

// Kind selects the handler that runs a task.
type Kind string

const (
	// KindCheck is the ledger dedup check admitted for each webhook.
	KindCheck Kind = "check"

	// KindCatchUp pages the provider's event list from a cursor.
	KindCatchUp Kind = "catchup"
)

// State is the lifecycle state of a task.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Payload is the task input. Check tasks carry the webhook's event id and
// updated_at; catch-up tasks carry the cursor to resume after.
type Payload struct {
	EventID   string     `json:"event_id,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Cursor    string     `json:"cursor,omitempty"`
}

// Task is one unit of serialized work.
type Task struct {
	entity.Entity

	ID id.ID `json:"id"`

	// Seq is the FIFO position, assigned by the store on enqueue.
	Seq int64 `json:"seq"`

	Kind    Kind    `json:"kind"`
	Payload Payload `json:"payload"`
	State   State   `json:"state"`

	AttemptCount  int        `json:"attempt_count"`
	MaxAttempts   int        `json:"max_attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastError     string     `json:"last_error,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Open reports whether the task still occupies a place in the queue.
func (t *Task) Open() bool {
	return t.State == StatePending || t.State == StateRunning
}

// ListOpts configures filtering and pagination for task listing. Tasks are
// returned newest first.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
	Kind   Kind
}
