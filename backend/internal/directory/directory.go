// Package directory resolves the users and graded sources that score records,
// exams and submissions reference.
package directory

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"lms_core/backend/internal/shared"
)

// Directory is the read side of the instructor/student/source registry.
// Lookups return shared.ErrNotFound when the id does not resolve.
type Directory interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*shared.User, error)
	GetSource(ctx context.Context, kind string, id primitive.ObjectID) (*shared.Source, error)
}

// ErrWrongRole is returned by RequireRole when the user exists with another role
var ErrWrongRole = errors.New("user has a different role")

// RequireRole resolves id and checks the user's role. It returns
// shared.ErrNotFound for an unknown id and ErrWrongRole on a mismatch.
func RequireRole(ctx context.Context, d Directory, id primitive.ObjectID, role string) (*shared.User, error) {
	user, err := d.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role != role {
		return user, ErrWrongRole
	}
	return user, nil
}
