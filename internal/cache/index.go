package cache

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-wdl/wdlrun/common/db"
	"github.com/go-wdl/wdlrun/internal/errs"
)

// Index is an optional secondary lookup layer recording cache-key metadata
// (hit/miss bookkeeping, written-at, task name) for observability and
// bulk eviction, without ever being the source of truth for an entry's
// outputs payload — that always lives in the Store.
type Index interface {
	Record(ctx context.Context, key Key, taskName string, hit bool) error
	Close()
}

// PgIndex is the optional Postgres-backed index (spec.md's domain stack
// calls for "optional Postgres-backed call-cache index ... alongside the
// required filesystem JSON store"), grounded on the teacher's own
// pgxpool wiring in common/db.
type PgIndex struct {
	pool *pgxpool.Pool
}

// NewPgIndex connects to Postgres and ensures the lookup table exists.
// Mirrors the teacher's db.New: parse config, pool with a short ping
// timeout, then hand back a ready client.
func NewPgIndex(ctx context.Context, databaseURL string) (*PgIndex, error) {
	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, err, "connect call-cache index")
	}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS call_cache_lookups (
			cache_key   TEXT PRIMARY KEY,
			task_name   TEXT NOT NULL,
			last_hit    BOOLEAN NOT NULL,
			accessed_at TIMESTAMPTZ NOT NULL
		)`); err != nil {
		pool.Close()
		return nil, errs.Wrap(errs.KindConfiguration, err, "create call-cache index table")
	}
	return &PgIndex{pool: pool}, nil
}

func (p *PgIndex) Record(ctx context.Context, key Key, taskName string, hit bool) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO call_cache_lookups (cache_key, task_name, last_hit, accessed_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (cache_key) DO UPDATE SET last_hit = $3, accessed_at = now()`,
		string(key), taskName, hit)
	if err != nil {
		return errs.Wrap(errs.KindConfiguration, err, "record call-cache lookup")
	}
	return nil
}

func (p *PgIndex) Close() { p.pool.Close() }

// noIndex is the default no-op Index used when no database URL is
// configured; the filesystem Store remains fully functional on its own.
type noIndex struct{}

func (noIndex) Record(context.Context, Key, string, bool) error { return nil }
func (noIndex) Close()                                          {}
