package ledger

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calmcash/auth-service/internal/apperrors"
	"github.com/calmcash/auth-service/internal/models"
	"github.com/calmcash/auth-service/internal/repository"
)

const (
	defaultRefreshTokenTTL = 30 * 24 * time.Hour

	// Entropy of the opaque secret. 48 bytes keeps hash collisions negligible
	// and encodes to a 64-char url-safe string.
	secretLenBytes = 48
)

// Ledger with sensible defaults
type Config struct {
	// Refresh token lifetime
	// If not set then default is used
	RefreshTTL time.Duration
}

// Ledger owns the persisted refresh token records and their lifecycle:
// a record is issued ACTIVE and terminates exactly once, either as ROTATED
// (revoked with a successor pointer) or as REVOKED. Records are never deleted,
// the rotation chain stays behind for audit and replay detection.
type Ledger struct {
	refreshTTL time.Duration
	storage    repository.Storage

	// injectable clock to keep expiry checks testable
	now func() time.Time
}

func New(cfg Config, storage repository.Storage) (*Ledger, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}

	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTokenTTL
	}

	return &Ledger{
		refreshTTL: cfg.RefreshTTL,
		storage:    storage,
		now:        time.Now,
	}, nil
}

// Issue generates a fresh opaque secret, persists its hashed record and
// returns the record together with the raw secret. This is the only place
// the raw secret exists after generation; it is never retrievable again.
func (l *Ledger) Issue(ctx context.Context, userID uuid.UUID, ip string, userAgent string) (models.RefreshToken, string, error) {
	return l.issue(ctx, l.storage, userID, ip, userAgent)
}

func (l *Ledger) issue(ctx context.Context, s repository.Storage, userID uuid.UUID, ip string, userAgent string) (models.RefreshToken, string, error) {
	raw, err := newSecret()
	if err != nil {
		return models.RefreshToken{}, "", fmt.Errorf("error while generating refresh secret. Err: %w", err)
	}

	now := l.now().Truncate(time.Second)
	token, err := s.Refresh().Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashToken(raw),
		IssuedAt:  now,
		ExpiresAt: now.Add(l.refreshTTL),
		IPAddress: ip,
		UserAgent: userAgent,
	})
	if err != nil {
		return token, "", fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return token, raw, nil
}

// Rotate exchanges a presented secret for a successor record. The presented
// token becomes permanently inactive; replaying it afterwards fails, which is
// the theft mitigation property of the chain.
//
// The lookup, the successor insert and the conditional mark run in one
// transaction. Two concurrent rotations of the same secret therefore cannot
// both succeed: the loser observes the token as already rotated.
func (l *Ledger) Rotate(ctx context.Context, raw string, ip string, userAgent string) (models.RefreshToken, string, error) {
	var next models.RefreshToken
	var nextRaw string

	err := l.storage.InTx(ctx, func(s repository.Storage) error {
		current, err := s.Refresh().GetByHash(ctx, HashToken(raw))
		if err != nil {
			return err
		}

		now := l.now()
		switch {
		case current.RevokedAt != nil:
			return fmt.Errorf("rotate: %w", apperrors.ErrRefreshTokenRevoked)
		case !now.Before(current.ExpiresAt):
			return fmt.Errorf("rotate: %w", apperrors.ErrRefreshTokenExpired)
		}

		next, nextRaw, err = l.issue(ctx, s, current.UserID, ip, userAgent)
		if err != nil {
			return err
		}

		return s.Refresh().MarkRotated(ctx, current.TokenHash, next.ID, now)
	})
	if err != nil {
		return models.RefreshToken{}, "", err
	}

	return next, nextRaw, nil
}

// Revoke terminates a presented secret. Revoking an already inactive token is
// a no-op, an unknown token is an error.
func (l *Ledger) Revoke(ctx context.Context, raw string) error {
	return l.storage.InTx(ctx, func(s repository.Storage) error {
		current, err := s.Refresh().GetByHash(ctx, HashToken(raw))
		if err != nil {
			return err
		}

		now := l.now()
		if !current.Active(now) {
			return nil
		}

		err = s.Refresh().MarkRevoked(ctx, current.TokenHash, now)
		if errors.Is(err, apperrors.ErrRefreshTokenRevoked) {
			// Lost the race to a concurrent revoke or rotate, same outcome
			return nil
		}
		return err
	})
}

func newSecret() (string, error) {
	b := make([]byte, secretLenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
