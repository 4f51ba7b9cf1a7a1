package store

import (
	"context"
	"errors"
	"fmt"

	"message-bridge/internal/observability"

	_ "github.com/jackc/pgx/v5/stdlib" // Import the pgx stdlib for sqlx
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db     *sqlx.DB
	logger *observability.Logger
}

func New(connectionString string, logger *observability.Logger) (Store, error) {
	db, err := sqlx.Open("pgx", connectionString)
	if err != nil {
		return Store{}, fmt.Errorf("failed to open database: %w", err)
	}
	return Store{db: db, logger: logger}, nil
}

// NewWithDB wraps an already opened connection pool.
func NewWithDB(db *sqlx.DB, logger *observability.Logger) Store {
	return Store{db: db, logger: logger}
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// DB returns the underlying database connection
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
