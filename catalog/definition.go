package catalog

import "encoding/json"

// Definition describes one event type the mirror subscribes to.
type Definition struct {
	// Name is the dot-separated provider event type (e.g. "user.updated").
	Name string `json:"name"`

	// Description is a human-readable summary.
	Description string `json:"description,omitempty"`

	// Schema is an optional JSON Schema the event's data must satisfy
	// before it is applied.
	Schema json.RawMessage `json:"schema,omitempty"`

	// Builtin marks the user types the applier mutates the mirror for.
	Builtin bool `json:"builtin"`
}
