//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"

	"message-bridge/internal/observability"

	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestDB wraps a migrated test database
type TestDB struct {
	db    *sqlx.DB
	Store Store
}

// SetupTestDB connects to the database named by TEST_DB_* and falls back to a
// throwaway PostgreSQL container when TEST_DB_HOST is not set.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	connStr, err := testConnectionString(t, ctx)
	if err != nil {
		t.Fatalf("failed to setup test database: %v", err)
	}

	db, err := sqlx.Open("pgx", connStr)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	s := NewWithDB(db, observability.NewLogger())
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	tdb := &TestDB{db: db, Store: s}
	tdb.Truncate(t)
	return tdb
}

func testConnectionString(t *testing.T, ctx context.Context) (string, error) {
	t.Helper()

	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			getEnvOr("TEST_DB_USER", "postgres"),
			getEnvOr("TEST_DB_PASSWORD", "postgres"),
			host,
			getEnvOr("TEST_DB_PORT", "5432"),
			getEnvOr("TEST_DB_NAME", "messages"),
		), nil
	}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("messages"),
		postgres.WithUsername("user"),
		postgres.WithPassword("pass"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start postgres container: %w", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	return container.ConnectionString(ctx, "sslmode=disable")
}

// Truncate clears all data from tables while preserving schema
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()
	if _, err := tdb.db.Exec("TRUNCATE TABLE messages"); err != nil {
		t.Fatalf("failed to truncate messages: %v", err)
	}
}

func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
