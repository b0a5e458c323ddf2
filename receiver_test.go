package mirror_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xraph/mirror"
	"github.com/xraph/mirror/queue"
	"github.com/xraph/mirror/signature"
	"github.com/xraph/mirror/store/memory"
)

// failingQueueStore rejects every enqueue.
type failingQueueStore struct {
	*memory.Store
}

func (failingQueueStore) EnqueueTask(context.Context, *queue.Task) error {
	return errors.New("disk full")
}

func post(h http.Handler, body []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, mirror.DefaultWebhookPath, bytes.NewReader(body))
	if header != "" {
		req.Header.Set(signature.HeaderName, header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandlerAdmits(t *testing.T) {
	m, _, _, _ := setup(t)
	body, header := signedBody(t, userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))

	rec := post(m.WebhookHandler(), body, header)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}

	tasks, err := m.Engine().List(ctx(), queue.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Kind != queue.KindCheck || tasks[0].Payload.EventID != "event_1" {
		t.Fatalf("tasks = %+v", tasks)
	}
	if tasks[0].Payload.UpdatedAt == nil {
		t.Fatal("check task lost updated_at")
	}
}

func TestWebhookHandlerRejects(t *testing.T) {
	m, _, _, _ := setup(t)
	body, header := signedBody(t, userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))
	malformed := []byte(`{"id": "event_1"}`)

	tests := []struct {
		name   string
		body   []byte
		header string
	}{
		{"missing signature", body, ""},
		{"wrong secret", body, signature.Header(body, "other_secret", time.Now())},
		{"stale timestamp", body, signature.Header(body, testSecret, time.Now().Add(-time.Hour))},
		{"tampered body", append([]byte(" "), body...), header},
		{"malformed payload", malformed, signature.Header(malformed, testSecret, time.Now())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(m.WebhookHandler(), tt.body, tt.header)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}

	pending, _ := m.Engine().Pending(ctx())
	if pending != 0 {
		t.Fatalf("rejected webhooks admitted %d tasks", pending)
	}
}

func TestWebhookHandlerMethodNotAllowed(t *testing.T) {
	m, _, _, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, mirror.DefaultWebhookPath, nil)
	rec := httptest.NewRecorder()
	m.WebhookHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestWebhookHandlerEnqueueFailure(t *testing.T) {
	m, _, _ := setupWith(t, failingQueueStore{Store: memory.New()})
	body, header := signedBody(t, userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))

	rec := post(m.WebhookHandler(), body, header)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHandleWebhookErrors(t *testing.T) {
	m, _, _, _ := setup(t)
	body, _ := signedBody(t, userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))

	if err := m.HandleWebhook(ctx(), body, ""); !errors.Is(err, mirror.ErrSignatureMissing) {
		t.Fatalf("expected ErrSignatureMissing, got %v", err)
	}
	if err := m.HandleWebhook(ctx(), body, "t=1, v1=deadbeef"); !errors.Is(err, mirror.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}
