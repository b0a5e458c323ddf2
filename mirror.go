package mirror

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/mirror/action"
	"github.com/xraph/mirror/apply"
	"github.com/xraph/mirror/catalog"
	"github.com/xraph/mirror/catchup"
	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/hook"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/observability"
	"github.com/xraph/mirror/provider"
	"github.com/xraph/mirror/provider/workos"
	"github.com/xraph/mirror/queue"
	"github.com/xraph/mirror/ratelimit"
	"github.com/xraph/mirror/signature"
	"github.com/xraph/mirror/store"
	"github.com/xraph/mirror/user"
)

// Mirror keeps a local copy of provider users in sync with the provider's
// event stream.
type Mirror struct {
	config  Config
	store   store.Store
	lister  provider.Lister
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	catalog  *catalog.Catalog
	ledger   *ledger.Ledger
	hooks    *hook.Dispatcher
	actions  *action.Dispatcher
	applier  *apply.Applier
	syncer   *catchup.Synchronizer
	dlqSvc   *dlq.Service
	engine   *queue.Engine
	verifier *signature.Verifier
}

// New creates a Mirror. Empty credentials are read from the environment;
// New fails with ErrMissingConfig when any are still missing.
func New(opts ...Option) (*Mirror, error) {
	m := &Mirror{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.store == nil {
		return nil, ErrNoStore
	}

	m.config.FromEnv()
	if m.config.WebhookPath == "" {
		m.config.WebhookPath = DefaultWebhookPath
	}
	if m.config.ActionPath == "" {
		m.config.ActionPath = DefaultActionPath
	}
	if err := m.config.validate(m.lister == nil); err != nil {
		return nil, err
	}

	if m.lister == nil {
		m.lister = workos.New(m.config.APIKey,
			workos.WithBaseURL(m.config.ProviderBaseURL),
			workos.WithRateLimit(ratelimit.New(), m.config.RateLimit),
			workos.WithLogger(m.logger),
		)
	}

	m.wireServices()
	return m, nil
}

// wireServices initializes the internal services after options have been
// applied.
func (m *Mirror) wireServices() {
	m.catalog = catalog.New(m.config.AdditionalEventTypes...)
	m.ledger = ledger.New(m.store, m.logger)
	m.hooks = hook.NewDispatcher(m.logger)
	m.actions = action.NewDispatcher(m.logger)

	m.applier = apply.New(m.store, m.ledger, m.catalog, m.hooks, apply.Config{
		Verbose: m.config.Verbose(),
		Metrics: m.metrics,
		Tracer:  m.tracer,
	}, m.logger)

	m.syncer = catchup.New(m.lister, m.applier, m.catalog, catchup.Config{
		Horizon: m.config.CatchUpHorizon,
		Metrics: m.metrics,
		Tracer:  m.tracer,
	}, m.logger)

	m.dlqSvc = dlq.NewService(m.store, m.logger, dlq.WithMetrics(m.metrics))

	m.engine = queue.NewEngine(m.store, m.dlqSvc, queue.Config{
		PollInterval:  m.config.PollInterval,
		MaxAttempts:   m.config.MaxAttempts,
		RetrySchedule: m.config.RetrySchedule,
		Metrics:       m.metrics,
		Tracer:        m.tracer,
	}, m.logger)
	m.engine.Handle(queue.KindCheck, m.runCheck)
	m.engine.Handle(queue.KindCatchUp, m.runCatchUp)

	m.verifier = signature.NewVerifier(m.config.SignatureTolerance)
}

// Start launches the queue worker. Tasks left open by a previous process
// run first.
func (m *Mirror) Start(ctx context.Context) {
	if err := m.dlqSvc.SyncSize(ctx); err != nil {
		m.logger.WarnContext(ctx, "dlq size unavailable", "error", err)
	}
	m.engine.Start(ctx)
}

// Stop shuts down the queue worker. An interrupted task runs again on the
// next Start.
func (m *Mirror) Stop(ctx context.Context) {
	m.engine.Stop(ctx)
}

// OnEvent registers the downstream hook, called once for every considered
// event whose type matches patterns (all events when none are given).
func (m *Mirror) OnEvent(h hook.Handler, patterns ...string) {
	m.hooks.Register(h, patterns...)
}

// Resync enqueues a catch-up from the current cursor.
func (m *Mirror) Resync(ctx context.Context) (*queue.Task, error) {
	cursor, err := m.ledger.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	return m.engine.Enqueue(ctx, queue.KindCatchUp, queue.Payload{Cursor: cursor})
}

// GetUser returns the mirrored user with the provider subject id.
func (m *Mirror) GetUser(ctx context.Context, subjectID string) (*user.User, error) {
	return m.store.GetUser(ctx, subjectID)
}

// ListUsers returns mirrored users ordered by subject id.
func (m *Mirror) ListUsers(ctx context.Context, opts user.ListOpts) ([]*user.User, error) {
	return m.store.ListUsers(ctx, opts)
}

// Cursor returns the newest ledger event id, or "" before the first event.
func (m *Mirror) Cursor(ctx context.Context) (string, error) {
	return m.ledger.Cursor(ctx)
}

// Config returns the effective configuration.
func (m *Mirror) Config() Config { return m.config }

// Store returns the underlying store.
func (m *Mirror) Store() store.Store { return m.store }

// Engine returns the admission queue.
func (m *Mirror) Engine() *queue.Engine { return m.engine }

// DLQ returns the DLQ service.
func (m *Mirror) DLQ() *dlq.Service { return m.dlqSvc }

// Ledger returns the event ledger.
func (m *Mirror) Ledger() *ledger.Ledger { return m.ledger }

// Catalog returns the subscribed event types.
func (m *Mirror) Catalog() *catalog.Catalog { return m.catalog }

// runCheck is the dedup check admitted for every verified webhook. The
// webhook body itself is never applied: an unseen event schedules a
// catch-up, which fetches it (and anything missed before it) from the
// provider in order.
func (m *Mirror) runCheck(ctx context.Context, t *queue.Task) error {
	p := t.Payload
	seen, err := m.ledger.Seen(ctx, p.EventID, p.UpdatedAt)
	if err != nil {
		return err
	}
	if seen {
		m.trace(ctx, "event already seen", "event_id", p.EventID)
		return nil
	}

	cursor, err := m.ledger.Cursor(ctx)
	if err != nil {
		return err
	}
	next, err := m.engine.Enqueue(ctx, queue.KindCatchUp, queue.Payload{Cursor: cursor})
	if err != nil {
		return fmt.Errorf("mirror: schedule catch-up for %s: %w", p.EventID, err)
	}
	m.trace(ctx, "catch-up scheduled", "event_id", p.EventID, "cursor", cursor, "task_id", next.ID)
	return nil
}

// runCatchUp pages events from the ledger's resume point. The ledger only
// grows through catch-up, in provider order, so that point is never behind
// the cursor the task was enqueued with. When an earlier event still owes a
// hook call, for instance after its task was dead-lettered, catch-up goes
// back to it.
func (m *Mirror) runCatchUp(ctx context.Context, _ *queue.Task) error {
	rp, err := m.ledger.Resume(ctx)
	if err != nil {
		return err
	}

	var res catchup.Result
	if rp.Since != nil {
		res, err = m.syncer.RunSince(ctx, *rp.Since)
	} else {
		res, err = m.syncer.Run(ctx, rp.Cursor)
	}
	if err != nil {
		if !provider.IsRetryable(err) {
			return queue.Permanent(err)
		}
		return err
	}
	m.trace(ctx, "catch-up finished", "cursor", res.Cursor, "events", res.Events, "pages", res.Pages)
	return nil
}

func (m *Mirror) trace(ctx context.Context, msg string, args ...any) {
	if m.config.Verbose() {
		m.logger.InfoContext(ctx, msg, args...)
		return
	}
	m.logger.DebugContext(ctx, msg, args...)
}
