package queue

import (
	"errors"
	"time"
)

// Decision is the outcome of evaluating a failed attempt.
type Decision int

const (
	// Retry means the task stays at the head and runs again later.
	Retry Decision = iota

	// DLQ means the task has permanently failed.
	DLQ
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the engine dead-letters the task without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retrier decides what happens after a failed attempt.
type Retrier struct {
	schedule []time.Duration
}

// NewRetrier creates a retrier with the given backoff schedule.
func NewRetrier(schedule []time.Duration) *Retrier {
	return &Retrier{schedule: schedule}
}

// Decide returns DLQ for permanent errors and exhausted tasks, Retry
// otherwise.
func (r *Retrier) Decide(err error, t *Task) Decision {
	if IsPermanent(err) {
		return DLQ
	}
	if t.AttemptCount < t.MaxAttempts {
		return Retry
	}
	return DLQ
}

// ComputeNextAttempt returns when attempt attemptCount+1 should run.
func (r *Retrier) ComputeNextAttempt(attemptCount int) time.Time {
	now := time.Now().UTC()
	if len(r.schedule) == 0 {
		return now
	}
	idx := attemptCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.schedule) {
		idx = len(r.schedule) - 1
	}
	return now.Add(r.schedule[idx])
}
