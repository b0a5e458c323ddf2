// Package entity defines the timestamp pair shared by mirror records.
package entity

import "time"

// Entity carries creation and modification times. Mirrored users embed it
// with the provider's own timestamps; bookkeeping records embed it with
// local wall-clock times.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an Entity with both timestamps set to the current UTC time.
func New() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch advances UpdatedAt to the current UTC time.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
