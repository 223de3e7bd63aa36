package handlers

import (
	"net/http"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authHandler *AuthHandler,
	authMiddleware func(http.Handler) http.Handler,
	mds ...func(http.Handler) http.Handler,
) http.Handler {
	root := http.NewServeMux()

	root.Handle("/auth/", http.StripPrefix("/auth", authHandler.Handler()))
	root.Handle("GET /me", authMiddleware(handleMe()))
	root.Handle("GET /healthz", handleHealth())

	return chain(root, mds...)
}
