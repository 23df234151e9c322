// Package db provides the one pgxpool connect-and-ping sequence
// internal/cache's PgIndex and internal/director's PgHistory both need, so
// neither duplicates it (the teacher's own common/db wraps pgxpool the same
// way, just for a single service-wide pool rather than several optional,
// independently-configured ones).
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect parses dsn, opens a pool, and pings it with a bounded timeout so
// a misconfigured database URL fails fast at startup rather than on the
// first query.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
