// Package apply maps provider events onto the local user mirror.
//
// Every considered event goes through the same three steps: mutate the user
// store (or decide not to), append the ledger entry, then hand the event to
// the downstream hook. The ledger entry's state records how far a previous
// attempt got, which makes Apply safe to call again for the same event.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/mirror/catalog"
	"github.com/xraph/mirror/event"
	"github.com/xraph/mirror/hook"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/observability"
	"github.com/xraph/mirror/user"
)

// Outcome describes what Apply did with an event.
type Outcome string

const (
	Created       Outcome = "created"
	Updated       Outcome = "updated"
	Deleted       Outcome = "deleted"
	Stale         Outcome = "stale"
	Skipped       Outcome = "skipped"
	PassedThrough Outcome = "passed_through"
	Duplicate     Outcome = "duplicate"
	Invalid       Outcome = "invalid"
)

// Config holds optional applier instrumentation.
type Config struct {
	// Verbose logs every considered event at Info instead of Debug.
	Verbose bool
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Applier applies events one at a time. It must only be called from the
// queue worker.
type Applier struct {
	users   user.Store
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
	hooks   *hook.Dispatcher
	config  Config
	logger  *slog.Logger
}

// New creates an Applier.
func New(users user.Store, l *ledger.Ledger, cat *catalog.Catalog, hooks *hook.Dispatcher, cfg Config, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		users:   users,
		ledger:  l,
		catalog: cat,
		hooks:   hooks,
		config:  cfg,
		logger:  logger,
	}
}

// Apply considers evt exactly once. An error means the attempt should be
// retried; committed steps are not repeated on the retry.
func (a *Applier) Apply(ctx context.Context, evt *event.Event) (outcome Outcome, err error) {
	var span trace.Span
	if a.config.Tracer != nil {
		ctx, span = a.config.Tracer.StartApplySpan(ctx, evt.ID, evt.Type)
		defer func() { a.config.Tracer.End(span, err) }()
	}

	a.trace(ctx, "considering event", "event_id", evt.ID, "event_type", evt.Type)

	entry, err := a.ledger.Get(ctx, evt.ID)
	switch {
	case err == nil:
		if entry.State == ledger.StateDispatched {
			a.trace(ctx, "event already applied", "event_id", evt.ID)
			return a.done(evt, Duplicate), nil
		}
		// A previous attempt committed the mutation but the hook failed.
		if err := a.dispatch(ctx, evt, entry); err != nil {
			return "", err
		}
		return a.done(evt, Duplicate), nil

	case !errors.Is(err, ledger.ErrNotFound):
		return "", fmt.Errorf("apply: %s: %w", evt.ID, err)
	}

	outcome, err = a.mutate(ctx, evt)
	if err != nil {
		return "", err
	}

	entry, err = a.ledger.Record(ctx, evt)
	if err != nil {
		return "", err
	}
	if err := a.dispatch(ctx, evt, entry); err != nil {
		return "", err
	}
	return a.done(evt, outcome), nil
}

func (a *Applier) mutate(ctx context.Context, evt *event.Event) (Outcome, error) {
	if err := a.catalog.Validate(evt.Type, evt.Data); err != nil {
		if errors.Is(err, catalog.ErrUnknownType) {
			a.logger.WarnContext(ctx, "event type not subscribed", "event_id", evt.ID, "event_type", evt.Type)
			return Skipped, nil
		}
		a.logger.ErrorContext(ctx, "event data failed validation",
			"event_id", evt.ID, "event_type", evt.Type, "error", err)
		return Invalid, nil
	}

	switch evt.Type {
	case event.TypeUserCreated:
		return a.create(ctx, evt)
	case event.TypeUserUpdated:
		return a.update(ctx, evt)
	case event.TypeUserDeleted:
		return a.remove(ctx, evt)
	default:
		return PassedThrough, nil
	}
}

func (a *Applier) create(ctx context.Context, evt *event.Event) (Outcome, error) {
	u, err := user.FromData(evt.Data)
	if err != nil {
		a.logger.ErrorContext(ctx, "user data unusable", "event_id", evt.ID, "error", err)
		return Invalid, nil
	}

	err = a.users.CreateUser(ctx, u)
	if errors.Is(err, user.ErrExists) {
		a.logger.WarnContext(ctx, "user already exists", "event_id", evt.ID, "user_id", u.ID)
		return Skipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("apply: create user %s: %w", u.ID, err)
	}
	return Created, nil
}

func (a *Applier) update(ctx context.Context, evt *event.Event) (Outcome, error) {
	subjectID := evt.SubjectID()
	u, err := a.users.GetUser(ctx, subjectID)
	if errors.Is(err, user.ErrNotFound) {
		a.logger.ErrorContext(ctx, "user not found", "event_id", evt.ID, "user_id", subjectID)
		return Skipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("apply: load user %s: %w", subjectID, err)
	}

	incoming, ok := evt.UpdatedAt()
	if !ok {
		a.logger.ErrorContext(ctx, "event updated_at unusable",
			"event_id", evt.ID, "user_id", subjectID, "updated_at", evt.Data["updated_at"])
		return Invalid, nil
	}
	if !incoming.After(u.UpdatedAt) {
		a.logger.WarnContext(ctx, "user already updated, skipping",
			"event_id", evt.ID, "user_id", subjectID, "stored_updated_at", u.UpdatedAt, "event_updated_at", incoming)
		return Stale, nil
	}

	if err := u.Patch(evt.Data); err != nil {
		a.logger.ErrorContext(ctx, "user data unusable", "event_id", evt.ID, "error", err)
		return Invalid, nil
	}
	if err := a.users.UpdateUser(ctx, u); err != nil {
		return "", fmt.Errorf("apply: update user %s: %w", subjectID, err)
	}
	return Updated, nil
}

func (a *Applier) remove(ctx context.Context, evt *event.Event) (Outcome, error) {
	subjectID := evt.SubjectID()
	err := a.users.DeleteUser(ctx, subjectID)
	if errors.Is(err, user.ErrNotFound) {
		a.logger.WarnContext(ctx, "user not found", "event_id", evt.ID, "user_id", subjectID)
		return Skipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("apply: delete user %s: %w", subjectID, err)
	}
	return Deleted, nil
}

func (a *Applier) dispatch(ctx context.Context, evt *event.Event, entry *ledger.Entry) error {
	if err := a.hooks.Dispatch(ctx, evt); err != nil {
		return err
	}
	return a.ledger.MarkDispatched(ctx, entry)
}

func (a *Applier) done(evt *event.Event, outcome Outcome) Outcome {
	if a.config.Metrics != nil {
		a.config.Metrics.RecordApplied(evt.Type, string(outcome))
	}
	return outcome
}

func (a *Applier) trace(ctx context.Context, msg string, args ...any) {
	if a.config.Verbose {
		a.logger.InfoContext(ctx, msg, args...)
		return
	}
	a.logger.DebugContext(ctx, msg, args...)
}
