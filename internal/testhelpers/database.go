package testhelpers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/riftline/bidengine/internal/auction"
)

// TestDatabase is a throwaway Postgres instance with its schema already
// migrated, ready for a test to seed and query directly.
type TestDatabase struct {
	Pool *pgxpool.Pool
}

// Close is a no-op retained for call sites written as `defer testDB.Close()`;
// actual teardown is registered against t.Cleanup in NewTestDatabase so it
// runs even if a test fails partway through setup.
func (db *TestDatabase) Close() {}

// NewTestDatabase boots a disposable Postgres container, applies every goose
// migration in migrationsDir against it, and tears both down automatically
// when t completes.
func NewTestDatabase(t *testing.T, migrationsDir string) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err, "failed to create connection pool")
	t.Cleanup(pool.Close)

	applyMigrations(t, pool, migrationsDir)

	return &TestDatabase{Pool: pool}
}

// applyMigrations drives goose against pool's underlying connection config;
// goose needs a database/sql handle, which pgx's stdlib shim provides
// without opening a second connection pool.
func applyMigrations(t *testing.T, pool *pgxpool.Pool, migrationsDir string) {
	t.Helper()

	connStr := stdlib.RegisterConnConfig(pool.Config().ConnConfig)
	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err, "failed to open sql.DB for goose")
	defer db.Close()

	require.NoError(t, goose.SetDialect("postgres"), "failed to set goose dialect")
	require.NoError(t, goose.Up(db, migrationsDir), "failed to apply migrations")
}

// CleanDatabase truncates all tables to reset state between tests
// Useful when reusing a database across multiple tests
func CleanDatabase(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	queries := []string{
		"TRUNCATE TABLE processed_events CASCADE",
		"TRUNCATE TABLE events CASCADE",
		"TRUNCATE TABLE bids CASCADE",
		"TRUNCATE TABLE items CASCADE",
	}

	for _, query := range queries {
		_, err := pool.Exec(ctx, query)
		require.NoError(t, err, "Failed to truncate table: %s", query)
	}
}

// SeedItem inserts an item row with the given status and returns its id.
func SeedItem(t *testing.T, pool *pgxpool.Pool, item auction.Item) int64 {
	t.Helper()

	const q = `
		INSERT INTO items (title, description, starting_price, current_price, buy_now_price,
		                    start_time, end_time, seller, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var id int64
	err := pool.QueryRow(context.Background(), q,
		item.Title, item.Description, item.StartingPrice, item.CurrentPrice, item.BuyNowPrice,
		item.StartTime, item.EndTime, item.Seller, string(item.Status),
	).Scan(&id)
	require.NoError(t, err, "failed to seed item")
	return id
}

