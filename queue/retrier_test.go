package queue_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/mirror/queue"
)

func TestDecide(t *testing.T) {
	r := queue.NewRetrier([]time.Duration{time.Second, 5 * time.Second})

	tests := []struct {
		name     string
		err      error
		attempts int
		max      int
		want     queue.Decision
	}{
		{"first failure retries", errors.New("boom"), 1, 3, queue.Retry},
		{"exhausted goes to DLQ", errors.New("boom"), 3, 3, queue.DLQ},
		{"permanent skips retries", queue.Permanent(errors.New("bad request")), 1, 3, queue.DLQ},
		{"wrapped permanent", fmt.Errorf("handler: %w", queue.Permanent(errors.New("bad"))), 1, 3, queue.DLQ},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &queue.Task{AttemptCount: tt.attempts, MaxAttempts: tt.max}
			if got := r.Decide(tt.err, task); got != tt.want {
				t.Fatalf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermanentNil(t *testing.T) {
	if queue.Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
	if queue.IsPermanent(errors.New("plain")) {
		t.Fatal("plain error reported as permanent")
	}
}

func TestComputeNextAttempt(t *testing.T) {
	schedule := []time.Duration{time.Second, time.Minute}
	r := queue.NewRetrier(schedule)

	before := time.Now()
	next := r.ComputeNextAttempt(1)
	if d := next.Sub(before); d < time.Second || d > 2*time.Second {
		t.Fatalf("attempt 1 delay = %v, want ~1s", d)
	}

	// Attempts beyond the schedule reuse the last step.
	next = r.ComputeNextAttempt(10)
	if d := next.Sub(before); d < time.Minute || d > time.Minute+time.Second {
		t.Fatalf("attempt 10 delay = %v, want ~1m", d)
	}

	empty := queue.NewRetrier(nil)
	if d := time.Until(empty.ComputeNextAttempt(1)); d > 0 {
		t.Fatalf("empty schedule should retry immediately, delay %v", d)
	}
}
