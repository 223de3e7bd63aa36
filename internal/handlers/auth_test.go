package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/calmcash/auth-service/internal/logger"
	"github.com/calmcash/auth-service/internal/repository/postgres"
	"github.com/calmcash/auth-service/internal/service/auth"
	"github.com/calmcash/auth-service/internal/service/auth/ledger"
	"github.com/calmcash/auth-service/internal/service/auth/tokenmanager"
	"github.com/calmcash/auth-service/internal/testutil"
)

func Test_AuthHandler(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run http server and attach auth handlers
	// Production AuthService will be used
	withTx := func(dbpool *pgxpool.Pool, t *testing.T, fn func(url string, auth *auth.AuthService)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			tokenManager, err := tokenmanager.New(tokenmanager.Config{
				SecretKey: "handler-test-secret-key-32-bytes!",
				Issuer:    "calmcash-auth",
				Audience:  "calmcash-api",
			})
			require.NoError(t, err, "token manager should be created without errors")

			lg, err := ledger.New(ledger.Config{}, storage)
			require.NoError(t, err, "ledger should be created without errors")

			s, err := auth.NewService(auth.Config{}, tokenManager, lg, storage)
			require.NoError(t, err, "auth service starting error", err)

			h := NewAuth(s, logger.NewNoOpLogger())
			srv := httptest.NewServer(h.Handler())
			defer srv.Close()

			fn(srv.URL, s)
		})
	}

	post := func(t *testing.T, url string, data string) (*http.Response, string) {
		t.Helper()

		resp, err := http.Post(url, "application/json", strings.NewReader(data))
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp, string(body)
	}

	tokensFromBody := func(t *testing.T, body string) TokenResponse {
		t.Helper()

		var tokens TokenResponse
		require.NoError(t, json.Unmarshal([]byte(body), &tokens))
		require.NotEmpty(t, tokens.AccessToken)
		require.NotEmpty(t, tokens.RefreshToken)
		return tokens
	}

	registerBody := `{"email": "user@example.com", "password": "StrongEnoughPassword", "displayName": "Test User"}`

	t.Run("register ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/register", registerBody)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			tokensFromBody(t, body)
		})
	})

	t.Run("register existed user fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/register", registerBody)
			require.Equal(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			// Email identity is case insensitive
			resp, body = post(t, url+"/register", `{"email": "USER@example.com", "password": "OtherPassword1", "displayName": "Other"}`)

			require.Equalf(t, http.StatusConflict, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Email already in use"
				}`, body)
		})
	})

	t.Run("register invalid payload fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/register", `{"email": "not-an-email", "password": "short", "displayName": ""}`)

			require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {
						"email": "Must be a valid email address",
						"password": "Value is too short (minimum 8)",
						"displayName": "This field is required"
					}
				}`, body)
		})
	})

	t.Run("register malformed json fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/register", `{"email": `)

			require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, "decoding_failed")
		})
	})

	t.Run("login ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/register", registerBody)
			require.Equal(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			resp, body = post(t, url+"/login", `{"email": "user@example.com", "password": "StrongEnoughPassword"}`)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			tokensFromBody(t, body)
		})
	})

	t.Run("login failed", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/register", registerBody)
			require.Equal(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			// Same response for wrong password and unknown email
			for _, data := range []string{
				`{"email": "user@example.com", "password": "WrongPassword"}`,
				`{"email": "nobody@example.com", "password": "StrongEnoughPassword"}`,
			} {
				resp, body = post(t, url+"/login", data)

				require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
				require.JSONEq(t, `
					{
						"error": "service_error",
						"message": "Invalid credentials"
					}`, body)
			}
		})
	})

	t.Run("login throttled", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/register", registerBody)
			require.Equal(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			for range 5 {
				resp, _ = post(t, url+"/login", `{"email": "user@example.com", "password": "WrongPassword"}`)
				require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			}

			// Correct password after the limit still gets throttled
			resp, body = post(t, url+"/login", `{"email": "user@example.com", "password": "StrongEnoughPassword"}`)

			require.Equalf(t, http.StatusTooManyRequests, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Too many login attempts"
				}`, body)
		})
	})

	t.Run("refresh token ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/register", registerBody)
			require.Equal(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			first := tokensFromBody(t, body)

			resp, body = post(t, url+"/refresh", `{"refreshToken": "`+first.RefreshToken+`"}`)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			second := tokensFromBody(t, body)
			require.NotEqual(t, first.RefreshToken, second.RefreshToken, "refresh token should be changed after refresh")
		})
	})

	t.Run("refresh twice fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/register", registerBody)
			require.Equal(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			first := tokensFromBody(t, body)

			resp, body = post(t, url+"/refresh", `{"refreshToken": "`+first.RefreshToken+`"}`)
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			resp, body = post(t, url+"/refresh", `{"refreshToken": "`+first.RefreshToken+`"}`)

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid token"
				}`, body)
		})
	})

	t.Run("refresh unknown token fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/refresh", `{"refreshToken": "never-issued"}`)

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid token"
				}`, body)
		})
	})

	t.Run("logout ok and idempotent", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/register", registerBody)
			require.Equal(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			tokens := tokensFromBody(t, body)

			resp, body = post(t, url+"/logout", `{"refreshToken": "`+tokens.RefreshToken+`"}`)
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `{}`, body)

			// Logged out token can not be used to refresh anymore
			resp, body = post(t, url+"/refresh", `{"refreshToken": "`+tokens.RefreshToken+`"}`)
			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)

			// Second logout of the same token is still ok
			resp, body = post(t, url+"/logout", `{"refreshToken": "`+tokens.RefreshToken+`"}`)
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
		})
	})

	t.Run("logout unknown token fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, auth *auth.AuthService) {
			resp, body := post(t, url+"/logout", `{"refreshToken": "never-issued"}`)

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid token"
				}`, body)
		})
	})
}
