package mongo

import (
	"context"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/mirror/user"
)

// CreateUser inserts a mirrored user.
func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	if _, err := s.mdb.NewInsert(toUserModel(u)).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return user.ErrExists
		}
		return fmt.Errorf("mirror/mongo: create user: %w", err)
	}
	return nil
}

// GetUser returns a user by subject id.
func (s *Store) GetUser(ctx context.Context, subjectID string) (*user.User, error) {
	var m userModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subjectID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("mirror/mongo: get user: %w", err)
	}

	return fromUserModel(&m), nil
}

// UpdateUser replaces a stored user.
func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	m := toUserModel(u)

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mirror/mongo: update user: %w", err)
	}

	if res.MatchedCount() == 0 {
		return user.ErrNotFound
	}

	return nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(ctx context.Context, subjectID string) error {
	res, err := s.mdb.NewDelete((*userModel)(nil)).
		Filter(bson.M{"_id": subjectID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mirror/mongo: delete user: %w", err)
	}

	if res.DeletedCount() == 0 {
		return user.ErrNotFound
	}

	return nil
}

// ListUsers returns users ordered by subject id.
func (s *Store) ListUsers(ctx context.Context, opts user.ListOpts) ([]*user.User, error) {
	var models []userModel

	filter := bson.M{}
	if opts.Email != "" {
		filter["email"] = bson.M{
			"$regex":   "^" + regexp.QuoteMeta(opts.Email) + "$",
			"$options": "i",
		}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("mirror/mongo: list users: %w", err)
	}

	result := make([]*user.User, 0, len(models))
	for i := range models {
		result = append(result, fromUserModel(&models[i]))
	}

	return result, nil
}

// CountUsers returns the number of mirrored users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	count, err := s.mdb.NewFind((*userModel)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("mirror/mongo: count users: %w", err)
	}

	return count, nil
}
