package workos_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/mirror/provider"
	"github.com/xraph/mirror/provider/workos"
)

func newClient(srv *httptest.Server) *workos.Client {
	return workos.New("sk_test_123",
		workos.WithBaseURL(srv.URL),
		workos.WithRateLimit(nil, 0),
		workos.WithBackOff(time.Millisecond, 5*time.Millisecond),
		workos.WithRetry(4, 5*time.Second),
	)
}

func TestListEventsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_123" {
			t.Errorf("authorization = %q", got)
		}
		q := r.URL.Query()
		if types := q["events"]; len(types) != 2 || types[0] != "user.created" || types[1] != "user.updated" {
			t.Errorf("events = %v", types)
		}
		if q.Get("range_start") != "2024-01-01T10:00:00Z" {
			t.Errorf("range_start = %q", q.Get("range_start"))
		}
		if q.Get("after") != "" {
			t.Errorf("unexpected after %q", q.Get("after"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [
				{"object": "event", "id": "event_1", "event": "user.created", "created_at": "2024-01-01T10:00:01.000Z", "data": {"id": "user_1", "email": "ada@example.com"}},
				{"object": "event", "id": "event_2", "event": "user.updated", "created_at": "2024-01-01T10:00:02.000Z", "data": {"id": "user_1", "updated_at": "2024-01-01T10:00:02.000Z"}}
			],
			"list_metadata": {"after": "event_2"}
		}`))
	}))
	defer srv.Close()

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	page, err := newClient(srv).ListEvents(context.Background(), provider.ListOpts{
		Types:      []string{"user.created", "user.updated"},
		RangeStart: &start,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 2 || page.Data[0].ID != "event_1" || page.Data[1].Type != "user.updated" {
		t.Fatalf("page = %+v", page.Data)
	}
	if page.Data[0].SubjectID() != "user_1" {
		t.Fatalf("subject = %q", page.Data[0].SubjectID())
	}
	if page.After != "event_2" {
		t.Fatalf("after = %q", page.After)
	}
}

func TestListEventsLastPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") != "event_9" {
			t.Errorf("after = %q", r.URL.Query().Get("after"))
		}
		_, _ = w.Write([]byte(`{"data": [], "list_metadata": {"after": null}}`))
	}))
	defer srv.Close()

	page, err := newClient(srv).ListEvents(context.Background(), provider.ListOpts{After: "event_9"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 0 || page.After != "" {
		t.Fatalf("page = %+v", page)
	}
}

func TestListEventsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data": [], "list_metadata": {}}`))
	}))
	defer srv.Close()

	if _, err := newClient(srv).ListEvents(context.Background(), provider.ListOpts{}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestListEventsDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "Invalid API key"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv).ListEvents(context.Background(), provider.ListOpts{})

	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *provider.APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "Invalid API key" {
		t.Fatalf("api error = %+v", apiErr)
	}
	if provider.IsRetryable(err) {
		t.Fatal("401 reported as retryable")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestListEventsGivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv).ListEvents(context.Background(), provider.ListOpts{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !provider.IsRetryable(err) {
		t.Fatalf("exhausted 502 should stay retryable for the queue, got %v", err)
	}
	if calls.Load() != 4 {
		t.Fatalf("calls = %d, want 4", calls.Load())
	}
}
