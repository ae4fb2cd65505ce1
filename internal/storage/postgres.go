// Package storage implements Postgres persistence for the pipeline's data
// model. All write paths are idempotent upserts keyed by natural unique
// constraints so at-least-once job delivery cannot corrupt data.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/promptops/insight-pipeline/internal/config"
	"github.com/promptops/insight-pipeline/internal/logger"
)

const pingTimeout = 5 * time.Second

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides access to all persisted entities.
type Store struct {
	db  *sqlx.DB
	log logger.Logger
}

// New connects to Postgres and returns a Store.
func New(cfg config.DatabaseConfig, log logger.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	return &Store{db: db, log: log}, nil
}

// NewWithDB wraps an existing connection. Intended for tests.
func NewWithDB(db *sqlx.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
