package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/mirror/queue"
	"github.com/xraph/mirror/store/memory"
)

// stubDLQ records pushed tasks.
type stubDLQ struct {
	mu     sync.Mutex
	pushed []*queue.Task
}

func (s *stubDLQ) PushFailed(_ context.Context, t *queue.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.pushed = append(s.pushed, &cp)
	return nil
}

func (s *stubDLQ) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushed)
}

func setupEngine(t *testing.T, dlq queue.DLQPusher, maxAttempts int) (*memory.Store, *queue.Engine) {
	t.Helper()
	store := memory.New()
	cfg := queue.Config{
		PollInterval:  20 * time.Millisecond,
		MaxAttempts:   maxAttempts,
		RetrySchedule: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
	}
	return store, queue.NewEngine(store, dlq, cfg, nil)
}

func TestDrainRunsInOrder(t *testing.T) {
	_, engine := setupEngine(t, nil, 1)

	var order []string
	engine.Handle(queue.KindCheck, func(_ context.Context, task *queue.Task) error {
		order = append(order, task.Payload.EventID)
		return nil
	})

	for _, evtID := range []string{"event_1", "event_2", "event_3"} {
		if _, err := engine.Enqueue(context.Background(), queue.KindCheck, queue.Payload{EventID: evtID}); err != nil {
			t.Fatal(err)
		}
	}

	if err := engine.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"event_1", "event_2", "event_3"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ran %v, want %v", order, want)
		}
	}

	pending, _ := engine.Pending(context.Background())
	if pending != 0 {
		t.Fatalf("pending = %d, want 0", pending)
	}
}

func TestRetryHoldsHeadOfLine(t *testing.T) {
	_, engine := setupEngine(t, nil, 3)

	var order []string
	failures := 2
	engine.Handle(queue.KindCheck, func(_ context.Context, task *queue.Task) error {
		order = append(order, task.Payload.EventID)
		if task.Payload.EventID == "event_1" && failures > 0 {
			failures--
			return errors.New("transient")
		}
		return nil
	})

	first, _ := engine.Enqueue(context.Background(), queue.KindCheck, queue.Payload{EventID: "event_1"})
	_, _ = engine.Enqueue(context.Background(), queue.KindCheck, queue.Payload{EventID: "event_2"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Drain(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"event_1", "event_1", "event_1", "event_2"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ran %v, want %v", order, want)
		}
	}

	got, err := engine.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != queue.StateDone || got.AttemptCount != 3 {
		t.Fatalf("state = %s attempts = %d", got.State, got.AttemptCount)
	}
}

func TestExhaustedTaskGoesToDLQ(t *testing.T) {
	dlq := &stubDLQ{}
	_, engine := setupEngine(t, dlq, 2)

	var calls atomic.Int32
	engine.Handle(queue.KindCatchUp, func(context.Context, *queue.Task) error {
		calls.Add(1)
		return errors.New("provider down")
	})

	task, _ := engine.Enqueue(context.Background(), queue.KindCatchUp, queue.Payload{Cursor: "event_9"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Drain(ctx); err != nil {
		t.Fatal(err)
	}

	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	if dlq.len() != 1 {
		t.Fatalf("dlq entries = %d, want 1", dlq.len())
	}

	got, _ := engine.Get(context.Background(), task.ID)
	if got.State != queue.StateFailed {
		t.Fatalf("state = %s, want failed", got.State)
	}
	if got.LastError != "provider down" {
		t.Fatalf("last error = %q", got.LastError)
	}
}

func TestPermanentErrorSkipsRetries(t *testing.T) {
	dlq := &stubDLQ{}
	_, engine := setupEngine(t, dlq, 5)

	var calls atomic.Int32
	engine.Handle(queue.KindCheck, func(context.Context, *queue.Task) error {
		calls.Add(1)
		return queue.Permanent(errors.New("unauthorized"))
	})

	_, _ = engine.Enqueue(context.Background(), queue.KindCheck, queue.Payload{EventID: "event_1"})
	if err := engine.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if dlq.len() != 1 {
		t.Fatalf("dlq entries = %d, want 1", dlq.len())
	}
}

func TestUnknownKindIsDeadLettered(t *testing.T) {
	dlq := &stubDLQ{}
	_, engine := setupEngine(t, dlq, 3)

	_, _ = engine.Enqueue(context.Background(), queue.Kind("mystery"), queue.Payload{})
	if err := engine.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dlq.len() != 1 {
		t.Fatalf("dlq entries = %d, want 1", dlq.len())
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	dlq := &stubDLQ{}
	_, engine := setupEngine(t, dlq, 1)

	engine.Handle(queue.KindCheck, func(context.Context, *queue.Task) error {
		panic("kaboom")
	})

	_, _ = engine.Enqueue(context.Background(), queue.KindCheck, queue.Payload{EventID: "event_1"})
	if err := engine.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dlq.len() != 1 {
		t.Fatalf("dlq entries = %d, want 1", dlq.len())
	}
}

func TestWorkerNeverOverlapsTasks(t *testing.T) {
	_, engine := setupEngine(t, nil, 1)

	var (
		inFlight atomic.Int32
		maxSeen  atomic.Int32
		done     sync.WaitGroup
	)
	const n = 20
	done.Add(n)
	engine.Handle(queue.KindCheck, func(context.Context, *queue.Task) error {
		defer done.Done()
		cur := inFlight.Add(1)
		for {
			prev := maxSeen.Load()
			if cur <= prev || maxSeen.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	engine.Start(context.Background())
	defer engine.Stop(context.Background())

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = engine.Enqueue(context.Background(), queue.KindCheck, queue.Payload{EventID: "event"})
		}()
	}
	wg.Wait()

	waitCh := make(chan struct{})
	go func() { done.Wait(); close(waitCh) }()
	select {
	case <-waitCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not complete")
	}

	if maxSeen.Load() != 1 {
		t.Fatalf("max concurrent handlers = %d, want 1", maxSeen.Load())
	}
}

func TestStopReturnsInterruptedTaskToQueue(t *testing.T) {
	store, engine := setupEngine(t, nil, 3)

	started := make(chan struct{})
	engine.Handle(queue.KindCatchUp, func(ctx context.Context, _ *queue.Task) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	task, _ := engine.Enqueue(context.Background(), queue.KindCatchUp, queue.Payload{})
	engine.Start(context.Background())

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not start")
	}
	engine.Stop(context.Background())

	got, err := store.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != queue.StatePending {
		t.Fatalf("state = %s, want pending", got.State)
	}
	if got.AttemptCount != 0 {
		t.Fatalf("attempts = %d, want 0", got.AttemptCount)
	}
}

// stuckStore fails every task update, as during a database outage.
type stuckStore struct {
	*memory.Store
	updates atomic.Int64
}

func (s *stuckStore) UpdateTask(_ context.Context, _ *queue.Task) error {
	s.updates.Add(1)
	return errors.New("connection refused")
}

func TestWorkerBacksOffWhenTaskCannotStart(t *testing.T) {
	store := &stuckStore{Store: memory.New()}
	engine := queue.NewEngine(store, nil, queue.Config{
		PollInterval: 50 * time.Millisecond,
		MaxAttempts:  1,
	}, nil)

	var ran atomic.Int64
	engine.Handle(queue.KindCheck, func(context.Context, *queue.Task) error {
		ran.Add(1)
		return nil
	})
	if _, err := engine.Enqueue(context.Background(), queue.KindCheck, queue.Payload{EventID: "event_1"}); err != nil {
		t.Fatal(err)
	}

	if err := engine.Drain(context.Background()); err == nil {
		t.Fatal("expected Drain to report the failed start")
	}

	engine.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	engine.Stop(context.Background())

	// One attempt per poll interval, plus slack for scheduling.
	if n := store.updates.Load(); n > 10 {
		t.Fatalf("UpdateTask called %d times in 200ms, worker is not backing off", n)
	}
	if ran.Load() != 0 {
		t.Fatalf("handler ran %d times for a task that never started", ran.Load())
	}
}
