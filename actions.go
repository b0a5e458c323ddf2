package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/xraph/mirror/action"
	"github.com/xraph/mirror/signature"
)

// OnAction installs the handler that allows or denies sign-ins and
// sign-ups. Actions also need an action secret.
func (m *Mirror) OnAction(h action.Handler) {
	m.actions.Register(h)
}

// HandleAction verifies an action request, asks the handler for a verdict
// and returns the signed response. Unlike webhooks it runs synchronously:
// the provider blocks the user's flow on the answer.
func (m *Mirror) HandleAction(ctx context.Context, payload []byte, sigHeader string) (*action.SignedResponse, error) {
	secret := m.config.ActionSecret
	if secret == "" || !m.actions.Registered() {
		return nil, ErrActionsDisabled
	}

	if err := m.verifier.Authenticate(payload, sigHeader, secret); err != nil {
		m.logger.WarnContext(ctx, "action rejected", "error", err)
		return nil, err
	}
	a, err := action.Decode(payload)
	if err != nil {
		m.logger.WarnContext(ctx, "action rejected", "error", err)
		return nil, err
	}
	m.trace(ctx, "action received", "action_id", a.ID, "object", a.Object)

	resp, err := m.actions.Decide(ctx, a)
	if err != nil {
		return nil, err
	}
	m.trace(ctx, "action decided", "action_id", a.ID, "verdict", resp.Verdict)
	return action.Sign(resp, secret, time.Now())
}

// ActionHandler serves HandleAction over HTTP.
func (m *Mirror) ActionHandler() http.Handler {
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

		resp, err := m.HandleAction(r.Context(), payload, r.Header.Get(signature.HeaderName))
		switch {
		case err == nil:
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				m.logger.ErrorContext(r.Context(), "write action response", "error", err)
			}
		case errors.Is(err, ErrActionsDisabled):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrSignatureMissing),
			errors.Is(err, ErrSignatureInvalid),
			errors.Is(err, ErrMalformedAction):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			m.logger.ErrorContext(r.Context(), "action failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	})
}
