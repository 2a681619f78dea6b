package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ajitpratap0/stockfunk/internal/backtest"
)

// setupPostgres starts a disposable Postgres container and applies the
// migrations. Requires Docker; gated behind RUN_DB_INTEGRATION.
func setupPostgres(t *testing.T) (*DB, string) {
	t.Helper()
	if os.Getenv("RUN_DB_INTEGRATION") == "" {
		t.Skip("Skipping database integration test: RUN_DB_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stockfunk_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := NewMigrator(connStr, "../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrator.Up(ctx))
	require.NoError(t, migrator.Close())

	conn, err := New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn, connStr
}

func TestRunStorePostgresRoundTrip(t *testing.T) {
	conn, _ := setupPostgres(t)
	store := NewRunStore(conn.Pool())
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, backtest.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 8.2, got.Result.Metrics.TotalReturnPct)

	// Upsert on re-save.
	rec.Status = backtest.JobStatusFailed
	rec.ErrorMessage = "boom"
	require.NoError(t, store.Save(ctx, rec))
	got, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, backtest.JobStatusFailed, got.Status)

	summaries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	require.NoError(t, store.Delete(ctx, rec.ID))
	_, err = store.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, backtest.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, rec.ID), backtest.ErrNotFound)
}

func TestMigratorIsIdempotent(t *testing.T) {
	conn, connStr := setupPostgres(t)

	migrator, err := NewMigrator(connStr, "../../migrations")
	require.NoError(t, err)
	defer migrator.Close()
	require.NoError(t, migrator.Up(context.Background()), "re-applying migrations is a no-op")
	assert.NoError(t, conn.Health(context.Background()))
}
