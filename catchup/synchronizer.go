// Package catchup pages the provider's event list from the ledger cursor and
// applies every event in provider order.
package catchup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/mirror/apply"
	"github.com/xraph/mirror/catalog"
	"github.com/xraph/mirror/event"
	"github.com/xraph/mirror/observability"
	"github.com/xraph/mirror/provider"
)

// DefaultHorizon is how far back a cold start (no cursor) looks.
const DefaultHorizon = 5 * time.Minute

// Applier applies one event. *apply.Applier implements it.
type Applier interface {
	Apply(ctx context.Context, evt *event.Event) (apply.Outcome, error)
}

// Config holds synchronizer configuration.
type Config struct {
	// Horizon bounds a cold start to events created within it.
	Horizon time.Duration

	// PageSize is passed to the provider as the page limit. Zero uses the
	// provider default.
	PageSize int

	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Result summarizes one run.
type Result struct {
	Pages  int
	Events int

	// Cursor is the id of the last applied event, or the starting cursor
	// when nothing was applied.
	Cursor string
}

// Synchronizer runs catch-up passes. It is not safe for concurrent use; the
// queue worker is its only caller.
type Synchronizer struct {
	lister  provider.Lister
	applier Applier
	catalog *catalog.Catalog
	config  Config
	logger  *slog.Logger
}

// New creates a Synchronizer. The event types requested from the provider
// are read from cat on every run.
func New(lister provider.Lister, applier Applier, cat *catalog.Catalog, cfg Config, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Synchronizer{
		lister:  lister,
		applier: applier,
		catalog: cat,
		config:  cfg,
		logger:  logger,
	}
}

// Run applies every event after cursor. An empty cursor starts Horizon ago.
// On error the events applied so far stay committed.
func (s *Synchronizer) Run(ctx context.Context, cursor string) (Result, error) {
	opts := provider.ListOpts{
		Types: s.catalog.Names(),
		After: cursor,
		Limit: s.config.PageSize,
	}
	if cursor == "" {
		start := s.config.Now().Add(-s.config.Horizon).UTC()
		opts.RangeStart = &start
	}
	return s.run(ctx, opts)
}

// RunSince applies every event created at or after since. Events already in
// the ledger are reconsidered; the applier treats them as duplicates.
func (s *Synchronizer) RunSince(ctx context.Context, since time.Time) (Result, error) {
	start := since.UTC()
	return s.run(ctx, provider.ListOpts{
		Types:      s.catalog.Names(),
		Limit:      s.config.PageSize,
		RangeStart: &start,
	})
}

func (s *Synchronizer) run(ctx context.Context, opts provider.ListOpts) (Result, error) {
	cursor := opts.After
	res := Result{Cursor: cursor}

	for {
		page, err := s.page(ctx, opts, res.Pages+1)
		if err != nil {
			return res, fmt.Errorf("catchup: list after %q: %w", opts.After, err)
		}
		res.Pages++

		for _, evt := range page.Data {
			if _, err := s.applier.Apply(ctx, evt); err != nil {
				return res, fmt.Errorf("catchup: apply %s: %w", evt.ID, err)
			}
			res.Events++
			res.Cursor = evt.ID
		}

		if page.After == "" || len(page.Data) == 0 || page.After == opts.After {
			break
		}
		opts.After = page.After
		opts.RangeStart = nil
	}

	s.logger.DebugContext(ctx, "catch-up done",
		"from", cursor, "cursor", res.Cursor, "pages", res.Pages, "events", res.Events)
	return res, nil
}

func (s *Synchronizer) page(ctx context.Context, opts provider.ListOpts, n int) (page *provider.Page, err error) {
	var span trace.Span
	if s.config.Tracer != nil {
		ctx, span = s.config.Tracer.StartPageSpan(ctx, opts.After, n)
		defer func() { s.config.Tracer.End(span, err) }()
	}

	page, err = s.lister.ListEvents(ctx, opts)
	if err != nil {
		return nil, err
	}
	if s.config.Metrics != nil {
		s.config.Metrics.CatchUpPages.Inc()
	}
	return page, nil
}
