package e2e

import (
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stretchr/testify/require"

	"github.com/calmcash/auth-service/internal/handlers"
	"github.com/calmcash/auth-service/internal/handlers/middleware"
	"github.com/calmcash/auth-service/internal/logger"
	"github.com/calmcash/auth-service/internal/repository/postgres"
	"github.com/calmcash/auth-service/internal/service/auth"
	"github.com/calmcash/auth-service/internal/service/auth/ledger"
	"github.com/calmcash/auth-service/internal/service/auth/tokenmanager"
	"github.com/calmcash/auth-service/internal/testutil"
)

type Services struct {
	AuthService *auth.AuthService
}

// Create db transaction and run server with that connection (one connection cause one transaction)
// The created transaction passed to inner function: so, you can safely use testutil.WithTx with it
func ServeInTx(dbpool *pgxpool.Pool, t *testing.T, fn func(tx pgx.Tx, srvURL string, services Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)

		tokenManager, err := tokenmanager.New(tokenmanager.Config{
			SecretKey: "e2e-test-secret-key-32-bytes-min!",
			Issuer:    "calmcash-auth",
			Audience:  "calmcash-api",
		})
		require.NoError(t, err, "token manager should be created without errors")

		tokenLedger, err := ledger.New(ledger.Config{}, storage)
		require.NoError(t, err, "ledger should be created without errors")

		as, err := auth.NewService(auth.Config{}, tokenManager, tokenLedger, storage)
		require.NoError(t, err, "auth service starting error", err)

		// Initialize handlers
		log := logger.NewNoOpLogger()
		authHandler := handlers.NewAuth(as, log)
		authMiddleware := middleware.AuthMiddleware(as)

		// Complete all together as router
		router := handlers.NewRouter(
			authHandler,
			authMiddleware,
		)

		// Run http server with the router in transaction
		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(tx, srv.URL, Services{AuthService: as})
	})
}
