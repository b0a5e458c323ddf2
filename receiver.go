package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xraph/mirror/queue"
	"github.com/xraph/mirror/signature"
)

// maxWebhookBody caps the accepted webhook body size.
const maxWebhookBody = 1 << 20

// HandleWebhook verifies a webhook and admits a check task for it. It never
// mutates state directly; the event is applied later, through catch-up.
func (m *Mirror) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	if m.metrics != nil {
		m.metrics.WebhooksReceived.Inc()
	}

	evt, err := m.verifier.Verify(payload, sigHeader, m.config.WebhookSecret)
	if err != nil {
		m.logger.WarnContext(ctx, "webhook rejected", "error", err)
		return err
	}
	m.trace(ctx, "webhook received", "event_id", evt.ID, "event_type", evt.Type)

	p := queue.Payload{EventID: evt.ID}
	if ts, ok := evt.UpdatedAt(); ok {
		p.UpdatedAt = &ts
	}
	if _, err := m.engine.Enqueue(ctx, queue.KindCheck, p); err != nil {
		return fmt.Errorf("mirror: admit %s: %w", evt.ID, err)
	}
	return nil
}

// WebhookHandler serves HandleWebhook over HTTP.
func (m *Mirror) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}

		err = m.HandleWebhook(r.Context(), payload, r.Header.Get(signature.HeaderName))
		switch {
		case err == nil:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		case errors.Is(err, ErrSignatureMissing),
			errors.Is(err, ErrSignatureInvalid),
			errors.Is(err, ErrMalformedPayload):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			m.logger.ErrorContext(r.Context(), "webhook admission failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	})
}
