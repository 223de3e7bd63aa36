package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/calmcash/auth-service/internal/handlers/render"
)

func handleMe() http.Handler {
	type response struct {
		UserID      uuid.UUID `json:"userId"`
		Email       string    `json:"email"`
		DisplayName string    `json:"displayName"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		render.JSON(w, response{UserID: user.ID, Email: user.Email, DisplayName: user.DisplayName})
	})
}

func handleHealth() http.Handler {
	type response struct {
		Status string `json:"status"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, response{Status: "ok"})
	})
}
