package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/calmcash/auth-service/internal/apperrors"
	"github.com/calmcash/auth-service/internal/models"
	"github.com/calmcash/auth-service/internal/repository"
	"github.com/calmcash/auth-service/internal/service/auth/ledger"
	"github.com/calmcash/auth-service/internal/service/auth/tokenmanager"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type Config struct {
	// Hasher to use during registration or login
	// BcryptHasher is used if not set
	Hasher PasswordHasher

	// Login failure throttling limits
	Throttle ThrottleConfig
}

// Client carries request provenance recorded with issued refresh tokens
// and used to scope login throttling
type Client struct {
	IP        string
	UserAgent string
}

// AuthService orchestrates registration, login, token refresh and logout.
// It owns no state of its own: the throttle, the token manager and the
// ledger are explicit injected collaborators.
type AuthService struct {
	token    *tokenmanager.TokenManager
	ledger   *ledger.Ledger
	hasher   PasswordHasher
	throttle *LoginThrottle
	storage  repository.Storage

	// hash compared against when the email is unknown, so unknown email and
	// wrong password take the same time and return the same error
	dummyHash string
}

func NewService(cfg Config, token *tokenmanager.TokenManager, lg *ledger.Ledger, storage repository.Storage) (*AuthService, error) {
	if token == nil || lg == nil || storage == nil {
		return nil, errors.New("token manager, ledger and storage must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	dummyHash, err := hasher.Hash("not-the-password-you-are-looking-for")
	if err != nil {
		return nil, fmt.Errorf("error while preparing dummy hash. Err: %w", err)
	}

	return &AuthService{
		token:     token,
		ledger:    lg,
		hasher:    hasher,
		throttle:  NewLoginThrottle(cfg.Throttle),
		storage:   storage,
		dummyHash: dummyHash,
	}, nil
}

// NormalizeEmail folds an email to its canonical form used as identity key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, email string, password string, displayName string, client Client) (models.TokenPair, error) {
	email = NormalizeEmail(email)
	displayName = strings.TrimSpace(displayName)

	// Pre-check is advisory only: the unique constraint on email settles the
	// race between the check and the insert
	_, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return models.TokenPair{}, apperrors.ErrUserAlreadyExists
	case !errors.Is(err, apperrors.ErrUserNotFound):
		return models.TokenPair{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.storage.User().CreateUser(ctx, email, displayName, hash)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.issuePair(ctx, user, client)
}

func (s *AuthService) Login(ctx context.Context, email string, password string, client Client) (models.TokenPair, error) {
	email = NormalizeEmail(email)
	key := ThrottleKey(email, client.IP)

	if s.throttle.IsBlocked(key) {
		return models.TokenPair{}, apperrors.ErrTooManyLoginAttempts
	}

	user, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Unknown email is indistinguishable from a wrong password
		_ = s.hasher.Compare(s.dummyHash, password)
		s.throttle.RecordFailure(key)
		return models.TokenPair{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.TokenPair{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		s.throttle.RecordFailure(key)
		return models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	s.throttle.RecordSuccess(key)

	return s.issuePair(ctx, user, client)
}

// Refresh rotates the presented refresh token and mints a fresh access token
func (s *AuthService) Refresh(ctx context.Context, refresh string, client Client) (models.TokenPair, error) {
	next, raw, err := s.ledger.Rotate(ctx, refresh, client.IP, client.UserAgent)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.storage.User().GetUserByID(ctx, next.UserID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while loading token owner. Err: %w", err)
	}

	access, err := s.token.IssueAccess(user)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		Access:  access,
		Refresh: models.IssuedToken{Value: raw, ExpiresAt: next.ExpiresAt},
	}, nil
}

// Logout revokes the presented refresh token.
// Revoking an already inactive token succeeds, an unknown one is an error.
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	return s.ledger.Revoke(ctx, refresh)
}

// Auth resolves the request bearer access token to a user
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	access, err := bearerToken(r)
	if err != nil {
		return models.User{}, err
	}

	userID, err := s.token.ParseAccess(access)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.storage.User().GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("%w. Err: %v", apperrors.ErrAccessTokenInvalid, err)
	}

	return user, nil
}

func (s *AuthService) issuePair(ctx context.Context, user models.User, client Client) (models.TokenPair, error) {
	access, err := s.token.IssueAccess(user)
	if err != nil {
		return models.TokenPair{}, err
	}

	record, raw, err := s.ledger.Issue(ctx, user.ID, client.IP, client.UserAgent)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		Access:  access,
		Refresh: models.IssuedToken{Value: raw, ExpiresAt: record.ExpiresAt},
	}, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", fmt.Errorf("%w: no bearer token in request", apperrors.ErrAccessTokenInvalid)
	}
	return token, nil
}
