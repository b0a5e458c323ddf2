// Package user defines the locally mirrored copy of a provider user.
package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/mirror/internal/entity"
)

// ErrNotFound is returned when no user exists for a subject id.
var ErrNotFound = errors.New("mirror: user not found")

// ErrExists is returned when creating a user whose subject id is taken.
var ErrExists = errors.New("mirror: user already exists")

// User is one mirrored provider user, keyed by the provider subject id.
// CreatedAt and UpdatedAt are the provider's timestamps, not local ones;
// UpdatedAt drives the stale-write guard.
type User struct {
	entity.Entity

	ID                string            `json:"id"`
	Email             string            `json:"email"`
	FirstName         string            `json:"first_name,omitempty"`
	LastName          string            `json:"last_name,omitempty"`
	EmailVerified     bool              `json:"email_verified"`
	ProfilePictureURL string            `json:"profile_picture_url,omitempty"`
	ExternalID        string            `json:"external_id,omitempty"`
	LastSignInAt      *time.Time        `json:"last_sign_in_at,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Name joins the first and last name.
func (u *User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// bookkeeping lists provider fields that describe the envelope, not the user.
var bookkeeping = []string{"object"}

// FromData builds a User from event data.
func FromData(data map[string]any) (*User, error) {
	u := &User{}
	if err := u.Patch(data); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, errors.New("user: data has no id")
	}
	return u, nil
}

// Patch overwrites the fields present in data. A field present with a null
// value is cleared; absent fields are left untouched.
func (u *User) Patch(data map[string]any) error {
	clean := make(map[string]any, len(data))
	for k, v := range data {
		clean[k] = v
	}
	for _, k := range bookkeeping {
		delete(clean, k)
	}

	for k, v := range clean {
		if v == nil {
			u.clear(k)
			delete(clean, k)
		}
	}

	raw, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("user: encode data: %w", err)
	}
	if err := json.Unmarshal(raw, u); err != nil {
		return fmt.Errorf("user: decode data: %w", err)
	}
	return nil
}

func (u *User) clear(field string) {
	switch field {
	case "first_name":
		u.FirstName = ""
	case "last_name":
		u.LastName = ""
	case "profile_picture_url":
		u.ProfilePictureURL = ""
	case "external_id":
		u.ExternalID = ""
	case "last_sign_in_at":
		u.LastSignInAt = nil
	case "metadata":
		u.Metadata = nil
	}
}

// ListOpts configures pagination for user listing.
type ListOpts struct {
	Offset int
	Limit  int
	Email  string
}
