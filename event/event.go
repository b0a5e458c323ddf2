// Package event defines the change notifications mirrored from the identity
// provider and the helpers for reading their payloads.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Built-in event types. Any other type is a pass-through type: it causes no
// local mutation and is only handed to the downstream hook.
const (
	TypeUserCreated = "user.created"
	TypeUserUpdated = "user.updated"
	TypeUserDeleted = "user.deleted"
)

// DefaultTypes returns the built-in event types in a fresh slice.
func DefaultTypes() []string {
	return []string{TypeUserCreated, TypeUserUpdated, TypeUserDeleted}
}

// Event is a single change notification issued by the provider. The ID is the
// provider's opaque event id, which also serves as the catch-up cursor.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"event"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// IsUserType reports whether t is one of the built-in user event types.
func IsUserType(t string) bool {
	switch t {
	case TypeUserCreated, TypeUserUpdated, TypeUserDeleted:
		return true
	default:
		return false
	}
}

// Decode parses a provider event body.
func Decode(raw []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("event: decode: %w", err)
	}
	if evt.ID == "" {
		return nil, fmt.Errorf("event: decode: missing id")
	}
	if evt.Type == "" {
		return nil, fmt.Errorf("event: decode %s: missing event type", evt.ID)
	}
	return &evt, nil
}

// SubjectID returns data.id, the provider subject the event is about.
func (e *Event) SubjectID() string {
	s, _ := e.Data["id"].(string)
	return s
}

// UpdatedAt returns data.updated_at. The second result is false when the
// field is absent or not a valid timestamp.
func (e *Event) UpdatedAt() (time.Time, bool) {
	return ParseTime(e.Data["updated_at"])
}

// ParseTime reads a provider timestamp. The provider emits RFC 3339 strings
// with millisecond precision.
func ParseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
