// Package dlq holds tasks that failed permanently so an operator can inspect
// and replay them.
package dlq

import (
	"errors"
	"time"

	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/internal/entity"
	"github.com/xraph/mirror/queue"
)

// ErrNotFound is returned for unknown DLQ entry ids.
var ErrNotFound = errors.New("mirror: DLQ entry not found")

// Entry is a dead-lettered task.
type Entry struct {
	entity.Entity

	ID id.ID `json:"id"`

	// TaskID references the task that failed.
	TaskID id.ID `json:"task_id"`

	Kind    queue.Kind    `json:"kind"`
	Payload queue.Payload `json:"payload"`

	// Error is the error from the final attempt.
	Error string `json:"error"`

	AttemptCount int       `json:"attempt_count"`
	FailedAt     time.Time `json:"failed_at"`
}

// ListOpts configures filtering and pagination for DLQ listing.
type ListOpts struct {
	Offset int
	Limit  int
	Kind   queue.Kind
	From   *time.Time
	To     *time.Time
}
