package handlers

import (
	"context"

	"github.com/calmcash/auth-service/internal/models"
)

type userKey struct{}

// NewContextWithUser stores the authenticated user in the context
func NewContextWithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the user set by the auth middleware, if any
func UserFromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey{}).(models.User)
	return u, ok
}
