package repository

import (
	"context"
	"errors"

	"driveguard/internal/domain"
)

// ErrDuplicateEmail is returned by Create when another user already holds the
// email. The sqlite implementation maps its unique constraint violation to
// this error, so concurrent signups resolve at the database rather than in
// application code.
var ErrDuplicateEmail = errors.New("email already in use")

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) error
	// FindByEmail returns (nil, nil) when no user holds the email;
	// absence is an expected outcome, not an error.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
}
