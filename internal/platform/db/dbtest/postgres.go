//go:build integration

// Package dbtest starts a throwaway PostgreSQL for integration tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
)

const image = "postgres:16-alpine"

// NewPool starts PostgreSQL in a container, applies the embedded migrations
// and returns a pool closed at test cleanup. The test is skipped when no
// container runtime is reachable.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("docker not available, skipping integration test")
	}
	_ = provider.Close()

	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("odyssey_iam_test"),
		postgres.WithUsername("odyssey"),
		postgres.WithPassword("odyssey"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = db.Migrate(ctx, pool)
	require.NoError(t, err)
	return pool
}

// InsertUser writes a user row directly, bypassing the users service.
func InsertUser(t *testing.T, pool *pgxpool.Pool, id, email, roleID, passwordHash string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `INSERT INTO users (id, email, name, password_hash, role_id)
VALUES ($1, $2, $3, $4, $5)`, id, email, id, passwordHash, roleID)
	require.NoError(t, err)
}
