package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/mirror/internal/entity"
	"github.com/xraph/mirror/user"
)

// userModel is the JSON representation stored in Redis.
type userModel struct {
	ID                string            `json:"id"`
	Email             string            `json:"email"`
	FirstName         string            `json:"first_name"`
	LastName          string            `json:"last_name"`
	EmailVerified     bool              `json:"email_verified"`
	ProfilePictureURL string            `json:"profile_picture_url"`
	ExternalID        string            `json:"external_id"`
	LastSignInAt      *time.Time        `json:"last_sign_in_at,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func toUserModel(u *user.User) *userModel {
	return &userModel{
		ID:                u.ID,
		Email:             u.Email,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		EmailVerified:     u.EmailVerified,
		ProfilePictureURL: u.ProfilePictureURL,
		ExternalID:        u.ExternalID,
		LastSignInAt:      u.LastSignInAt,
		Metadata:          u.Metadata,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func fromUserModel(m *userModel) *user.User {
	return &user.User{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                m.ID,
		Email:             m.Email,
		FirstName:         m.FirstName,
		LastName:          m.LastName,
		EmailVerified:     m.EmailVerified,
		ProfilePictureURL: m.ProfilePictureURL,
		ExternalID:        m.ExternalID,
		LastSignInAt:      m.LastSignInAt,
		Metadata:          m.Metadata,
	}
}

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	ok, err := s.createEntity(ctx, entityKey(prefixUser, u.ID), toUserModel(u))
	if err != nil {
		return fmt.Errorf("mirror/redis: create user: %w", err)
	}
	if !ok {
		return user.ErrExists
	}
	if err := s.rdb.ZAdd(ctx, zUsers, goredis.Z{Score: 0, Member: u.ID}).Err(); err != nil {
		return fmt.Errorf("mirror/redis: create user index: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, subjectID string) (*user.User, error) {
	var m userModel
	if err := s.getEntity(ctx, entityKey(prefixUser, subjectID), &m); err != nil {
		if isMissing(err) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("mirror/redis: get user: %w", err)
	}
	return fromUserModel(&m), nil
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	ok, err := s.replaceEntity(ctx, entityKey(prefixUser, u.ID), toUserModel(u))
	if err != nil {
		return fmt.Errorf("mirror/redis: update user: %w", err)
	}
	if !ok {
		return user.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, subjectID string) error {
	pipe := s.rdb.Pipeline()
	del := pipe.Del(ctx, entityKey(prefixUser, subjectID))
	pipe.ZRem(ctx, zUsers, subjectID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror/redis: delete user: %w", err)
	}
	if del.Val() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// ListUsers walks the user index in member order. The email filter is
// applied client-side, so filtered listings read every user.
func (s *Store) ListUsers(ctx context.Context, opts user.ListOpts) ([]*user.User, error) {
	if opts.Email == "" {
		ids, err := s.zPage(ctx, zUsers, false, opts.Offset, opts.Limit)
		if err != nil {
			return nil, fmt.Errorf("mirror/redis: list users: %w", err)
		}
		return s.loadUsers(ctx, ids, nil)
	}

	ids, err := s.zPage(ctx, zUsers, false, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("mirror/redis: list users: %w", err)
	}
	users, err := s.loadUsers(ctx, ids, func(u *user.User) bool {
		return strings.EqualFold(u.Email, opts.Email)
	})
	if err != nil {
		return nil, err
	}
	return applyPagination(users, opts.Offset, opts.Limit), nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zUsers).Result()
	if err != nil {
		return 0, fmt.Errorf("mirror/redis: count users: %w", err)
	}
	return count, nil
}

func (s *Store) loadUsers(ctx context.Context, ids []string, keep func(*user.User) bool) ([]*user.User, error) {
	result := make([]*user.User, 0, len(ids))
	for _, subjectID := range ids {
		u, err := s.GetUser(ctx, subjectID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if keep != nil && !keep(u) {
			continue
		}
		result = append(result, u)
	}
	return result, nil
}
