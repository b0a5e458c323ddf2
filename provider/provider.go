// Package provider abstracts the identity provider's event list API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/mirror/event"
)

// ListOpts selects one page of events.
type ListOpts struct {
	// Types restricts the page to these event types.
	Types []string

	// After returns only events strictly after this event id.
	After string

	// RangeStart returns only events created at or after this instant.
	RangeStart *time.Time

	// Limit caps the page size. Zero uses the provider default.
	Limit int
}

// Page is one page of events in provider order. After is the cursor for the
// next page and is empty on the last page.
type Page struct {
	Data  []*event.Event
	After string
}

// Lister lists provider events.
type Lister interface {
	ListEvents(ctx context.Context, opts ListOpts) (*Page, error)
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("provider: %d %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if sent again:
// rate limiting and server errors.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether err is worth retrying. Errors other than
// *APIError (network failures, timeouts) are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}
