package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/calmcash/auth-service/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with email exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, displayName string, hashedPassword string) (models.User, error)

	// Get user by id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save new token record
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return token record by secret hash regardless of its state
	// If no record matches must return apperrors.ErrRefreshTokenNotFound
	GetByHash(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Mark token rotated: set revoked_at and the successor pointer, but only
	// while the token is still active at the given instant. If the token is
	// gone or no longer active must return apperrors.ErrRefreshTokenRevoked,
	// so concurrent rotations of the same secret can never both succeed.
	MarkRotated(ctx context.Context, tokenHash string, replacedBy uuid.UUID, at time.Time) error

	// Mark token revoked under the same conditional rule as MarkRotated
	MarkRevoked(ctx context.Context, tokenHash string, at time.Time) error
}

// Storage combines repositories backed by the same database
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	// Run fn with storage bound to a single transaction
	// Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(s Storage) error) error
}
