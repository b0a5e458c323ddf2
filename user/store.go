package user

import "context"

// Store persists mirrored users. Only the applier writes through it.
type Store interface {
	// CreateUser inserts u. Returns ErrExists when the id is taken.
	CreateUser(ctx context.Context, u *User) error

	// GetUser returns the user with the given subject id or ErrNotFound.
	GetUser(ctx context.Context, subjectID string) (*User, error)

	// UpdateUser replaces the stored user. Returns ErrNotFound if absent.
	UpdateUser(ctx context.Context, u *User) error

	// DeleteUser removes the user. Returns ErrNotFound if absent.
	DeleteUser(ctx context.Context, subjectID string) error

	// ListUsers returns users ordered by subject id.
	ListUsers(ctx context.Context, opts ListOpts) ([]*User, error)

	// CountUsers returns the number of mirrored users.
	CountUsers(ctx context.Context) (int64, error)
}
