package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/calmcash/auth-service/internal/apperrors"
	"github.com/calmcash/auth-service/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, revoked_at, replaced_by_token_id, ip_address, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, user_id, token_hash, issued_at, expires_at, revoked_at, replaced_by_token_id, ip_address, user_agent
`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken,
		token.ID, token.UserID, token.TokenHash,
		token.IssuedAt, token.ExpiresAt,
		token.RevokedAt, token.ReplacedByTokenID,
		token.IPAddress, token.UserAgent,
	)
	saved, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}
	return saved, nil
}

const getTokenByHash = `-- name: GetRefreshTokenByHash
SELECT id, user_id, token_hash, issued_at, expires_at, revoked_at, replaced_by_token_id, ip_address, user_agent
FROM refresh_tokens
WHERE token_hash = $1
`

// Get token record by hash of the secret
// Returns the record even if it is expired, revoked or rotated
func (r *RefreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getTokenByHash, tokenHash)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const markTokenRotated = `-- name: MarkRefreshTokenRotated
UPDATE refresh_tokens
SET revoked_at = $2, replaced_by_token_id = $3
WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
RETURNING id
`

// Mark token rotated: set revoked_at and point the record at its successor.
// The update is conditional on the token still being active, so of two
// concurrent rotations presenting the same secret exactly one may succeed.
func (r *RefreshTokenRepo) MarkRotated(ctx context.Context, tokenHash string, replacedBy uuid.UUID, at time.Time) error {
	rows, _ := r.DB.Query(ctx, markTokenRotated, tokenHash, at, replacedBy)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const markTokenRevoked = `-- name: MarkRefreshTokenRevoked
UPDATE refresh_tokens
SET revoked_at = $2
WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
RETURNING id
`

// Mark token revoked if it is still active
func (r *RefreshTokenRepo) MarkRevoked(ctx context.Context, tokenHash string, at time.Time) error {
	rows, _ := r.DB.Query(ctx, markTokenRevoked, tokenHash, at)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash,
		&t.IssuedAt, &t.ExpiresAt,
		&t.RevokedAt, &t.ReplacedByTokenID,
		&t.IPAddress, &t.UserAgent,
	)
	return t, err
}
