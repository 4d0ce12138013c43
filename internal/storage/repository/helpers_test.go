package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/purchasekit/internal/migrations"
	"github.com/magabrotheeeer/purchasekit/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции проекта.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if os.Getenv("SKIP_POSTGRES_TESTS") == "true" {
		t.Skip("Skipping PostgreSQL tests")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var storage *Storage
	for range 10 {
		storage, err = New(connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "Failed to create storage after retries")

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	version, err := migrations.Run(storage.DB, filepath.Join(root, "migrations"))
	require.NoError(t, err)
	require.NotZero(t, version)

	cleanup := func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}

func newTransaction(id, productID string, purchased time.Time) models.Transaction {
	return models.Transaction{
		ID:           id,
		OriginalID:   "orig-" + id,
		ProductID:    productID,
		PurchaseDate: purchased,
		Environment:  "Sandbox",
	}
}
