// Package database manages the management PostgreSQL connection pool
// and bootstraps the shop registry schema on startup.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the management database pool. It holds the public
// shopify_shops registry; per-tenant data lives in shop_<code> schemas
// reached through the tenancy router.
type DB struct {
	Pool *pgxpool.Pool
}

// Open connects to the management database, verifies the connection,
// and bootstraps the registry schema.
func Open(ctx context.Context, connString string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, RegistrySchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: bootstrap registry schema: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close shuts down the management pool. Call this during graceful shutdown.
func (db *DB) Close() {
	db.Pool.Close()
}
