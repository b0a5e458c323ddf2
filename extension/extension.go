package extension

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xraph/mirror"
	"github.com/xraph/mirror/api"
	"github.com/xraph/mirror/store"
)

// Extension owns a Mirror and its HTTP surface.
type Extension struct {
	config Config
	opts   []mirror.Option
	logger *slog.Logger
	mirror *mirror.Mirror
}

// ExtOption configures the extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, mirror.WithStore(s))
	}
}

// WithLogger sets the logger shared by the extension and the Mirror.
func WithLogger(logger *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithPrefix sets the URL prefix for admin API routes.
func WithPrefix(prefix string) ExtOption {
	return func(e *Extension) {
		e.config.Prefix = prefix
	}
}

// WithMirrorOption appends a raw mirror.Option, applied after the
// configuration.
func WithMirrorOption(opt mirror.Option) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, opt)
	}
}

// New builds the Mirror described by cfg.
func New(cfg Config, opts ...ExtOption) (*Extension, error) {
	e := &Extension{config: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.config.Prefix == "" {
		e.config.Prefix = DefaultPrefix
	}
	e.config.Prefix = "/" + strings.Trim(e.config.Prefix, "/")

	mopts := append([]mirror.Option{mirror.WithLogger(e.logger)}, e.config.ToMirrorOptions()...)
	m, err := mirror.New(append(mopts, e.opts...)...)
	if err != nil {
		return nil, err
	}
	e.mirror = m
	return e, nil
}

// Mirror returns the underlying Mirror.
func (e *Extension) Mirror() *mirror.Mirror { return e.mirror }

// Prefix returns the admin API URL prefix.
func (e *Extension) Prefix() string { return e.config.Prefix }

// WebhookPath returns the route the webhook handler is served on.
func (e *Extension) WebhookPath() string { return e.mirror.Config().WebhookPath }

// ActionPath returns the route the action handler is served on.
func (e *Extension) ActionPath() string { return e.mirror.Config().ActionPath }

// Start launches the queue worker.
func (e *Extension) Start(ctx context.Context) {
	e.mirror.Start(ctx)
	e.logger.InfoContext(ctx, "mirror extension started",
		"webhook_path", e.WebhookPath(),
		"prefix", e.config.Prefix,
	)
}

// Stop shuts down the queue worker.
func (e *Extension) Stop(ctx context.Context) {
	e.mirror.Stop(ctx)
	e.logger.InfoContext(ctx, "mirror extension stopped")
}

// AdminHandler returns the admin API without the prefix applied.
func (e *Extension) AdminHandler() http.Handler {
	return api.NewHandler(e.mirror, e.logger)
}

// Handler serves the webhook and action routes and, unless disabled, the
// admin API under the prefix.
func (e *Extension) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(e.WebhookPath(), e.mirror.WebhookHandler())
	mux.Handle(e.ActionPath(), e.mirror.ActionHandler())
	if !e.config.DisableAdmin {
		mux.Handle(e.config.Prefix+"/", http.StripPrefix(e.config.Prefix, e.AdminHandler()))
	}
	return mux
}
