package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a BlobStore backed by a single persisted_blobs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore from a DSN
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Load returns the blob stored under key, or (nil, nil) when absent
func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM persisted_blobs WHERE key = $1`

	var value []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load blob %q: %w", key, err)
	}

	return value, nil
}

// Save upserts the blob under key. The upsert is a single statement, so a
// concurrent reader never observes a partial value.
func (s *PostgresStore) Save(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT INTO persisted_blobs (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, query, key, data); err != nil {
		return fmt.Errorf("failed to save blob %q: %w", key, err)
	}

	return nil
}

// Delete removes the blob under key
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM persisted_blobs WHERE key = $1`

	if _, err := s.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete blob %q: %w", key, err)
	}

	return nil
}
