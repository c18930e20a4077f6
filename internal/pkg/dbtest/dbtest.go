// Package dbtest starts a throwaway PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
)

// DockerAvailable checks if Docker is available and running
func DockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// Setup creates a migrated PostgreSQL container and returns a pool on it.
// Skips the test if Docker is not available. Cleanup is registered on t.
func Setup(t *testing.T) *db.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !DockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
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
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	return db.Wrap(pool)
}

// SeedUser inserts a user with the given balance.
func SeedUser(t *testing.T, pool *db.Pool, userID, points int64) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (user_id, points) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET points = EXCLUDED.points`,
		userID, points)
	require.NoError(t, err)
}
