// Package action answers the provider's blocking AuthKit actions.
//
// Before completing a sign-in or a sign-up the provider posts an action
// context, signed like a webhook, and waits for a signed verdict:
//
//	{"object": "authentication_action_response",
//	 "payload": {"timestamp": 1700000000000, "verdict": "Allow"},
//	 "signature": "<hex>"}
//
// The signature is the hex HMAC-SHA256 of "{timestamp}.{payload JSON}" keyed
// with the action secret.
package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/mirror/signature"
)

// Kind names the flow an action gates.
type Kind string

const (
	Authentication   Kind = "authentication"
	UserRegistration Kind = "user_registration"
)

// Context objects posted by the provider.
const (
	ObjectAuthentication   = "authentication_action_context"
	ObjectUserRegistration = "user_registration_action_context"
)

// Verdict is the answer to an action.
type Verdict string

const (
	Allow Verdict = "Allow"
	Deny  Verdict = "Deny"
)

// ErrMalformed is returned for bodies that are not an action context.
var ErrMalformed = errors.New("mirror: malformed action payload")

// Context is a decoded action request. Fields the provider adds later stay
// reachable through Raw.
type Context struct {
	ID     string `json:"id"`
	Object string `json:"object"`

	// User is set on authentication actions.
	User map[string]any `json:"user,omitempty"`

	// UserData is set on user registration actions.
	UserData map[string]any `json:"user_data,omitempty"`

	Organization           map[string]any `json:"organization,omitempty"`
	OrganizationMembership map[string]any `json:"organization_membership,omitempty"`
	Invitation             map[string]any `json:"invitation,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Raw map[string]any `json:"-"`
}

// Kind returns the flow the context belongs to.
func (c *Context) Kind() Kind {
	if c.Object == ObjectAuthentication {
		return Authentication
	}
	return UserRegistration
}

// Allow returns an allowing response for c.
func (c *Context) Allow() Response {
	return Response{Kind: c.Kind(), Verdict: Allow}
}

// Deny returns a denying response for c carrying message.
func (c *Context) Deny(message string) Response {
	return Response{Kind: c.Kind(), Verdict: Deny, ErrorMessage: message}
}

// Decode parses an action body.
func Decode(raw []byte) (*Context, error) {
	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := json.Unmarshal(raw, &c.Raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	switch c.Object {
	case ObjectAuthentication, ObjectUserRegistration:
	default:
		return nil, fmt.Errorf("%w: unknown object %q", ErrMalformed, c.Object)
	}
	return &c, nil
}

// Response is the handler's decision.
type Response struct {
	Kind         Kind
	Verdict      Verdict
	ErrorMessage string
}

// Payload is the signed part of a SignedResponse.
type Payload struct {
	Timestamp    int64   `json:"timestamp"`
	Verdict      Verdict `json:"verdict"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// SignedResponse is the body returned to the provider.
type SignedResponse struct {
	Object    string  `json:"object"`
	Payload   Payload `json:"payload"`
	Signature string  `json:"signature"`
}

// Sign builds the signed body for r at now. The error message is only sent
// with a Deny verdict.
func Sign(r Response, secret string, now time.Time) (*SignedResponse, error) {
	if r.Verdict != Allow && r.Verdict != Deny {
		return nil, fmt.Errorf("action: unknown verdict %q", r.Verdict)
	}

	p := Payload{Timestamp: now.UnixMilli(), Verdict: r.Verdict}
	if r.Verdict == Deny {
		p.ErrorMessage = r.ErrorMessage
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("action: encode payload: %w", err)
	}

	object := "user_registration_action_response"
	if r.Kind == Authentication {
		object = "authentication_action_response"
	}
	return &SignedResponse{
		Object:    object,
		Payload:   p,
		Signature: signature.Sign(raw, secret, p.Timestamp),
	}, nil
}

// Handler decides an action. A returned error fails the request; the
// provider applies its own fallback.
type Handler func(ctx context.Context, a *Context) (Response, error)

// Dispatcher holds at most one Handler.
type Dispatcher struct {
	mu      sync.RWMutex
	handler Handler
	logger  *slog.Logger
}

// NewDispatcher returns a Dispatcher with no handler.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Register installs h, replacing any previous handler.
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Registered reports whether a handler is installed.
func (d *Dispatcher) Registered() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handler != nil
}

// Decide runs the handler for a. Handler panics are returned as errors.
func (d *Dispatcher) Decide(ctx context.Context, a *Context) (resp Response, err error) {
	d.mu.RLock()
	h := d.handler
	d.mu.RUnlock()

	if h == nil {
		return Response{}, errors.New("action: no handler registered")
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("action: handler panic on %s: %v", a.ID, rec)
		}
	}()

	resp, err = h(ctx, a)
	if err != nil {
		d.logger.WarnContext(ctx, "action handler failed", "action_id", a.ID, "object", a.Object, "error", err)
		return Response{}, fmt.Errorf("action: %s: %w", a.ID, err)
	}
	if resp.Kind == "" {
		resp.Kind = a.Kind()
	}
	return resp, nil
}
