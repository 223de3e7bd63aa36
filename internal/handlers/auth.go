package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/calmcash/auth-service/internal/apperrors"
	"github.com/calmcash/auth-service/internal/handlers/render"
	"github.com/calmcash/auth-service/internal/logger"
	"github.com/calmcash/auth-service/internal/models"
	"github.com/calmcash/auth-service/internal/service/auth"
)

// Auth service as seen from the HTTP layer
type AuthService interface {
	// Register new user
	// Has to return apperrors.ErrUserAlreadyExists if the email is taken
	Register(ctx context.Context, email string, password string, displayName string, client auth.Client) (models.TokenPair, error)

	// Login user with email and password
	// Has to return apperrors.ErrInvalidCredentials on any credential mismatch
	// and apperrors.ErrTooManyLoginAttempts when the key is throttled
	Login(ctx context.Context, email string, password string, client auth.Client) (models.TokenPair, error)

	// Refresh rotates the presented refresh token
	Refresh(ctx context.Context, refresh string, client auth.Client) (models.TokenPair, error)

	// Logout revokes the presented refresh token
	Logout(ctx context.Context, refresh string) error
}

type AuthHandler struct {
	authService AuthService
	logger      logger.Logger
}

func NewAuth(authService AuthService, l logger.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: l}
}

func (h *AuthHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.register)
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /refresh", h.refresh)
	mux.HandleFunc("POST /logout", h.logout)

	return mux
}

// TokenResponse carries both issued credentials.
// The refresh token raw value here is the only time it ever leaves the server.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Email       string `json:"email" validate:"required,email"`
		Password    string `json:"password" validate:"required,min=8"`
		DisplayName string `json:"displayName" validate:"required,min=1,max=100"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	pair, err := h.authService.Register(r.Context(), data.Email, data.Password, data.DisplayName, clientFromRequest(r))
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "Email already in use", http.StatusConflict)
		default:
			h.logger.Error("register failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, TokenResponse{AccessToken: pair.Access.Value, RefreshToken: pair.Refresh.Value})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	pair, err := h.authService.Login(r.Context(), data.Email, data.Password, clientFromRequest(r))
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrTooManyLoginAttempts):
			render.ServiceError(w, "Too many login attempts", http.StatusTooManyRequests)
		default:
			h.logger.Error("login failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, TokenResponse{AccessToken: pair.Access.Value, RefreshToken: pair.Refresh.Value})
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	data, err := render.BindAndValidate[RefreshRequest](w, r)
	if err != nil {
		return
	}

	pair, err := h.authService.Refresh(r.Context(), data.RefreshToken, clientFromRequest(r))
	if err != nil {
		switch {
		// Whether the token is unknown, expired or rotated away is internal
		// diagnostic detail, the caller only learns that it is invalid
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound),
			errors.Is(err, apperrors.ErrRefreshTokenRevoked),
			errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
		default:
			h.logger.Error("refresh failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, TokenResponse{AccessToken: pair.Access.Value, RefreshToken: pair.Refresh.Value})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	type LogoutRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	data, err := render.BindAndValidate[LogoutRequest](w, r)
	if err != nil {
		return
	}

	err = h.authService.Logout(r.Context(), data.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
		default:
			h.logger.Error("logout failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, struct{}{})
}

// clientFromRequest captures provenance metadata stored with refresh tokens
func clientFromRequest(r *http.Request) auth.Client {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	return auth.Client{
		IP:        ip,
		UserAgent: r.UserAgent(),
	}
}
