package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/internal/entity"
	"github.com/xraph/mirror/observability"
)

// Handler runs the body of one task. Returning an error schedules a retry
// unless the error is wrapped with Permanent.
type Handler func(ctx context.Context, t *Task) error

// DLQPusher receives tasks that failed permanently.
type DLQPusher interface {
	PushFailed(ctx context.Context, t *Task) error
}

// Config holds engine configuration.
type Config struct {
	PollInterval  time.Duration
	MaxAttempts   int
	RetrySchedule []time.Duration
	Metrics       *observability.Metrics
	Tracer        *observability.Tracer
}

// Engine is the single-worker task runner.
type Engine struct {
	store   Store
	retrier *Retrier
	dlq     DLQPusher
	config  Config
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[Kind]Handler

	// runMu admits one task execution at a time across the worker and Drain.
	runMu sync.Mutex
	wake  chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine over store. dlq may be nil.
func NewEngine(store Store, dlq DLQPusher, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Engine{
		store:    store,
		retrier:  NewRetrier(cfg.RetrySchedule),
		dlq:      dlq,
		config:   cfg,
		logger:   logger,
		handlers: make(map[Kind]Handler),
		wake:     make(chan struct{}, 1),
	}
}

// Handle registers the handler for kind, replacing any previous one.
func (e *Engine) Handle(kind Kind, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = h
}

// Enqueue durably records a new task and wakes the worker. It does not wait
// for the task to run.
func (e *Engine) Enqueue(ctx context.Context, kind Kind, payload Payload) (*Task, error) {
	t := &Task{
		Entity:        entity.New(),
		ID:            id.NewTaskID(),
		Kind:          kind,
		Payload:       payload,
		State:         StatePending,
		MaxAttempts:   e.config.MaxAttempts,
		NextAttemptAt: time.Now().UTC(),
	}
	if err := e.store.EnqueueTask(ctx, t); err != nil {
		return nil, fmt.Errorf("queue: enqueue %s: %w", kind, err)
	}

	if e.config.Metrics != nil {
		e.config.Metrics.PendingTasks.Inc()
	}
	e.logger.DebugContext(ctx, "task enqueued", "task_id", t.ID, "kind", kind, "seq", t.Seq)

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return t, nil
}

// Start launches the worker.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop(ctx)
	}()
}

// Stop cancels the worker and waits for it to exit. A task interrupted by
// Stop is returned to the queue and runs again on the next start.
func (e *Engine) Stop(_ context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Drain runs tasks on the calling goroutine until the queue is empty,
// sleeping through retry delays. It shares the worker's execution lock, so
// it never overlaps a running task.
func (e *Engine) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := e.step(ctx)
		if err != nil {
			return err
		}
		switch {
		case res.ran:
			continue
		case res.empty:
			return nil
		default:
			timer := time.NewTimer(res.wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// Get returns a task by ID.
func (e *Engine) Get(ctx context.Context, taskID id.ID) (*Task, error) {
	return e.store.GetTask(ctx, taskID)
}

// List returns tasks newest first.
func (e *Engine) List(ctx context.Context, opts ListOpts) ([]*Task, error) {
	return e.store.ListTasks(ctx, opts)
}

// Pending returns the number of open tasks.
func (e *Engine) Pending(ctx context.Context) (int64, error) {
	return e.store.CountPending(ctx)
}

func (e *Engine) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		res, err := e.step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.ErrorContext(ctx, "queue step failed", "error", err)
			res.wait = e.config.PollInterval
		}
		if res.ran {
			continue
		}

		timer := time.NewTimer(res.wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-e.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

type stepResult struct {
	ran   bool
	empty bool
	wait  time.Duration
}

// step runs the head task if it is due.
func (e *Engine) step(ctx context.Context) (stepResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	t, err := e.store.NextTask(ctx)
	if errors.Is(err, ErrEmpty) {
		return stepResult{empty: true, wait: e.config.PollInterval}, nil
	}
	if err != nil {
		return stepResult{wait: e.config.PollInterval}, err
	}

	if d := time.Until(t.NextAttemptAt); d > 0 {
		return stepResult{wait: min(d, e.config.PollInterval)}, nil
	}

	if err := e.execute(ctx, t); err != nil {
		return stepResult{wait: e.config.PollInterval}, err
	}
	return stepResult{ran: true}, nil
}

// execute runs one attempt of t and persists the outcome. It returns an
// error only when the attempt could not be started.
func (e *Engine) execute(ctx context.Context, t *Task) error {
	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartTaskSpan(ctx, t.ID.String(), string(t.Kind), t.AttemptCount+1)
	}

	// Writes after the attempt must land even when ctx was cancelled by Stop.
	persist := context.WithoutCancel(ctx)

	t.State = StateRunning
	t.AttemptCount++
	if err := e.store.UpdateTask(ctx, t); err != nil {
		if span != nil {
			e.config.Tracer.End(span, err)
		}
		return fmt.Errorf("queue: mark task %s running: %w", t.ID, err)
	}

	start := time.Now()
	runErr := e.invoke(ctx, t)
	latency := time.Since(start).Seconds()

	if runErr != nil && ctx.Err() != nil {
		t.State = StatePending
		t.AttemptCount--
		e.logger.InfoContext(persist, "task interrupted by shutdown", "task_id", t.ID, "kind", t.Kind)
		e.update(persist, t)
		if span != nil {
			e.config.Tracer.End(span, runErr)
		}
		return nil
	}

	if runErr == nil {
		now := time.Now().UTC()
		t.State = StateDone
		t.CompletedAt = &now
		t.LastError = ""
		if e.config.Metrics != nil {
			e.config.Metrics.RecordTask(string(t.Kind), "done", latency)
			e.config.Metrics.PendingTasks.Dec()
		}
		e.logger.DebugContext(ctx, "task done", "task_id", t.ID, "kind", t.Kind, "attempt", t.AttemptCount)
	} else {
		t.LastError = runErr.Error()

		switch e.retrier.Decide(runErr, t) {
		case Retry:
			t.State = StatePending
			t.NextAttemptAt = e.retrier.ComputeNextAttempt(t.AttemptCount)
			if e.config.Metrics != nil {
				e.config.Metrics.RecordTask(string(t.Kind), "retried", latency)
			}
			e.logger.WarnContext(ctx, "task retry scheduled",
				"task_id", t.ID, "kind", t.Kind, "attempt", t.AttemptCount, "next_at", t.NextAttemptAt, "error", runErr)

		case DLQ:
			now := time.Now().UTC()
			t.State = StateFailed
			t.CompletedAt = &now
			if e.dlq != nil {
				if dlqErr := e.dlq.PushFailed(persist, t); dlqErr != nil {
					e.logger.ErrorContext(ctx, "push to DLQ failed", "task_id", t.ID, "error", dlqErr)
				}
			}
			if e.config.Metrics != nil {
				e.config.Metrics.RecordTask(string(t.Kind), "failed", latency)
				e.config.Metrics.PendingTasks.Dec()
			}
			e.logger.ErrorContext(ctx, "task failed permanently",
				"task_id", t.ID, "kind", t.Kind, "attempts", t.AttemptCount,
				"error", fmt.Errorf("%w: %w", ErrTaskFailed, runErr))
		}
	}

	if span != nil {
		e.config.Tracer.End(span, runErr)
	}
	e.update(persist, t)
	return nil
}

func (e *Engine) update(ctx context.Context, t *Task) {
	if err := e.store.UpdateTask(ctx, t); err != nil {
		e.logger.ErrorContext(ctx, "update task failed", "task_id", t.ID, "error", err)
	}
}

// invoke calls the registered handler, converting panics into errors.
func (e *Engine) invoke(ctx context.Context, t *Task) (err error) {
	e.mu.RLock()
	h, ok := e.handlers[t.Kind]
	e.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("queue: no handler for task kind %q", t.Kind))
	}

	defer func() {
		if rec := recover(); rec != nil {
			e.logger.ErrorContext(ctx, "task handler panicked",
				"task_id", t.ID, "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("queue: handler panic: %v", rec)
		}
	}()
	return h(ctx, t)
}
