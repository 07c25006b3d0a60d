package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hatch-backend/internal/ai"
	backend "hatch-backend/internal/api"
	"hatch-backend/internal/auth"
	"hatch-backend/internal/chat"
	"hatch-backend/internal/database"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	uri := setupPostgresContainer(t, context.Background())
	db, err := database.NewDatabase(uri)
	require.NoError(t, err)

	return db
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

type staticTitler struct{}

func (staticTitler) GenerateTitle(ctx context.Context, message string) (string, error) {
	return "Integration chat", nil
}

// createRouter assembles the api the way the server does, with a scripted
// model provider in place of the real one.
func createRouter(db *gorm.DB, provider ai.Provider) chi.Router {
	issuer := auth.NewTokenIssuer("integration-secret", time.Hour)
	registry := ai.DefaultRegistry()
	orchestrator := chat.NewOrchestrator(db, registry, provider, staticTitler{})

	r := chi.NewRouter()
	r.Use(auth.Middleware(issuer))
	backend.NewBackendService(db, registry).AddRoutes(r)
	backend.NewAuthService(db, issuer).AddRoutes(r)
	backend.NewChatService(db, orchestrator, time.Minute).AddRoutes(r)
	backend.NewInsuranceService(db).AddRoutes(r)
	return r
}

// httpRequest sends payload as json and returns the raw response body,
// failing unless the status is 200.
func httpRequest(api http.Handler, method, endpoint, token string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		requestBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(requestBody)
	}

	req := httptest.NewRequest(method, endpoint, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		return nil, fmt.Errorf("expected status code 200, got %d: %v", rr.Code, rr.Body.String())
	}

	return rr.Body.Bytes(), nil
}

func jsonRequest(api http.Handler, method, endpoint, token string, payload, dest any) error {
	body, err := httpRequest(api, method, endpoint, token, payload)
	if err != nil {
		return err
	}
	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
