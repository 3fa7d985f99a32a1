// Package database provides database connection utilities.
package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// PoolOption configures the connection pool.
type PoolOption func(*pgxpool.Config)

// WithAfterConnect sets a callback run on each new connection (e.g. for type registration).
func WithAfterConnect(fn func(context.Context, *pgx.Conn) error) PoolOption {
	return func(c *pgxpool.Config) {
		c.AfterConnect = fn
	}
}

// NewPostgresPool creates a new PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string, opts ...PoolOption) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	for _, opt := range opts {
		opt(config)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL")

	return pool, nil
}

// NewPgvectorPool creates a pool with pgvector types registered on every
// connection. Registration needs the vector extension to already exist, so
// bootstrap (schema setup, typically including CREATE EXTENSION) first runs
// on a plain throwaway pool.
func NewPgvectorPool(
	ctx context.Context, databaseURL string,
	bootstrap func(context.Context, *pgxpool.Pool) error,
) (*pgxpool.Pool, error) {
	if bootstrap != nil {
		boot, err := NewPostgresPool(ctx, databaseURL)
		if err != nil {
			return nil, err
		}

		err = bootstrap(ctx, boot)

		boot.Close()

		if err != nil {
			return nil, fmt.Errorf("bootstrap schema: %w", err)
		}
	}

	return NewPostgresPool(ctx, databaseURL, WithAfterConnect(pgxvec.RegisterTypes))
}
