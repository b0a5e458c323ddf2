// Package hook delivers each applied event to the application's single
// downstream callback.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/mirror/catalog"
	"github.com/xraph/mirror/event"
)

// Handler is the downstream callback. A returned error fails the task that
// applied the event, so the call is retried.
type Handler func(ctx context.Context, eventType string, data map[string]any) error

// Dispatcher holds at most one Handler and the type patterns it subscribes to.
type Dispatcher struct {
	mu       sync.RWMutex
	handler  Handler
	patterns []string
	logger   *slog.Logger
}

// NewDispatcher returns a Dispatcher with no handler.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Register installs h, replacing any previous handler. With no patterns the
// handler receives every event.
func (d *Dispatcher) Register(h Handler, patterns ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
	d.patterns = append([]string(nil), patterns...)
}

// Registered reports whether a handler is installed.
func (d *Dispatcher) Registered() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handler != nil
}

// Dispatch hands evt to the handler when one is registered and its patterns
// match. Handler panics are returned as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *event.Event) (err error) {
	d.mu.RLock()
	h, patterns := d.handler, d.patterns
	d.mu.RUnlock()

	if h == nil || !catalog.MatchAny(patterns, evt.Type) {
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hook: handler panic on %s: %v", evt.ID, rec)
		}
	}()

	if err := h(ctx, evt.Type, evt.Data); err != nil {
		d.logger.WarnContext(ctx, "hook handler failed", "event_id", evt.ID, "event_type", evt.Type, "error", err)
		return fmt.Errorf("hook: %s: %w", evt.ID, err)
	}
	return nil
}
