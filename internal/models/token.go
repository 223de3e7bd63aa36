package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the persisted ledger record of an opaque refresh secret.
// Only the hash of the secret is stored; the raw value leaves the process
// exactly once, in the response that issued it.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// RevokedAt set means the token is terminally inactive.
	// ReplacedByTokenID points to the successor when the token was rotated.
	RevokedAt         *time.Time
	ReplacedByTokenID *uuid.UUID

	// Provenance metadata captured at issuance, audit only.
	IPAddress string
	UserAgent string
}

// Active reports whether the token may still be rotated or revoked.
func (t RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenPair issued by AuthService on register, login and refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
