package middleware

import (
	"context"
	"net/http"

	"github.com/calmcash/auth-service/internal/handlers"
	"github.com/calmcash/auth-service/internal/handlers/render"
	"github.com/calmcash/auth-service/internal/models"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

// AuthMiddleware resolves the bearer access token and puts the user into the
// request context. Any resolution failure is a flat 401, the cause stays in
// server logs only.
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.Auth(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(handlers.NewContextWithUser(r.Context(), user)))
		})
	}
}
