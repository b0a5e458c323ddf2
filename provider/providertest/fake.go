// Package providertest provides an in-memory provider.Lister for tests.
package providertest

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/xraph/mirror/catalog"
	"github.com/xraph/mirror/event"
	"github.com/xraph/mirror/provider"
)

// DefaultPageSize is the page size used when ListOpts.Limit is zero.
const DefaultPageSize = 100

// compile-time interface check.
var _ provider.Lister = (*Fake)(nil)

// Fake serves an append-only event log in the order events were added.
type Fake struct {
	mu       sync.Mutex
	events   []*event.Event
	pageSize int
	failures []error
	calls    []provider.ListOpts
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{pageSize: DefaultPageSize}
}

// SetPageSize changes the default page size.
func (f *Fake) SetPageSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSize = n
}

// Add appends events to the log. Events without CreatedAt are stamped now.
func (f *Fake) Add(events ...*event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, evt := range events {
		if evt.CreatedAt.IsZero() {
			evt.CreatedAt = time.Now().UTC()
		}
		f.events = append(f.events, evt)
	}
}

// FailNext makes the next len(errs) calls return errs in order.
func (f *Fake) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, errs...)
}

// Calls returns the options of every ListEvents call so far.
func (f *Fake) Calls() []provider.ListOpts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// ListEvents implements provider.Lister.
func (f *Fake) ListEvents(ctx context.Context, opts provider.ListOpts) (*provider.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, opts)
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}

	start := 0
	if opts.After != "" {
		idx := slices.IndexFunc(f.events, func(e *event.Event) bool { return e.ID == opts.After })
		if idx < 0 {
			return nil, &provider.APIError{StatusCode: http.StatusBadRequest, Message: "unknown cursor " + opts.After}
		}
		start = idx + 1
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = f.pageSize
	}

	page := &provider.Page{}
	for i := start; i < len(f.events); i++ {
		evt := f.events[i]
		if len(opts.Types) > 0 && !catalog.MatchAny(opts.Types, evt.Type) {
			continue
		}
		if opts.RangeStart != nil && evt.CreatedAt.Before(*opts.RangeStart) {
			continue
		}
		if len(page.Data) == limit {
			page.After = page.Data[len(page.Data)-1].ID
			break
		}
		cp := *evt
		page.Data = append(page.Data, &cp)
	}
	return page, nil
}
