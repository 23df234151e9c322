package director

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-wdl/wdlrun/common/db"
	"github.com/go-wdl/wdlrun/internal/errs"
)

// History is an optional run-history ledger (spec.md §6.2's Postgres run
// history config block): a record of every invocation's run directory,
// workflow name, and outcome, independent of the call cache's own
// Postgres-backed index (internal/cache.PgIndex).
type History interface {
	// RunStarted records a new run, identified by a fresh uuid.UUID (the
	// teacher's own common/models/common/sdk types key every run/event
	// record by uuid.UUID rather than a derived string), and returns that
	// id for the matching RunFinished call.
	RunStarted(ctx context.Context, runDir, workflowName string) (uuid.UUID, error)
	RunFinished(ctx context.Context, runID uuid.UUID, failed bool, errMsg string) error
	Close()
}

// PgHistory is the Postgres-backed implementation, grounded on the same
// pgxpool wiring internal/cache.PgIndex and the teacher's common/db use.
type PgHistory struct {
	pool *pgxpool.Pool
}

func NewPgHistory(ctx context.Context, databaseURL string) (*PgHistory, error) {
	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, err, "connect run-history database")
	}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS run_history (
			run_id        UUID PRIMARY KEY,
			run_dir       TEXT NOT NULL,
			workflow_name TEXT NOT NULL,
			started_at    TIMESTAMPTZ NOT NULL,
			finished_at   TIMESTAMPTZ,
			failed        BOOLEAN,
			error_message TEXT
		)`); err != nil {
		pool.Close()
		return nil, errs.Wrap(errs.KindConfiguration, err, "create run-history table")
	}
	return &PgHistory{pool: pool}, nil
}

func (h *PgHistory) RunStarted(ctx context.Context, runDir, workflowName string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := h.pool.Exec(ctx, `
		INSERT INTO run_history (run_id, run_dir, workflow_name, started_at)
		VALUES ($1, $2, $3, now())`, id, runDir, workflowName)
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.KindConfiguration, err, "record run start")
	}
	return id, nil
}

func (h *PgHistory) RunFinished(ctx context.Context, runID uuid.UUID, failed bool, errMsg string) error {
	_, err := h.pool.Exec(ctx, `
		UPDATE run_history SET finished_at = now(), failed = $2, error_message = $3
		WHERE run_id = $1`, runID, failed, errMsg)
	if err != nil {
		return errs.Wrap(errs.KindConfiguration, err, "record run finish")
	}
	return nil
}

func (h *PgHistory) Close() { h.pool.Close() }

// noHistory is the default no-op History used when no database URL is
// configured.
type noHistory struct{}

func (noHistory) RunStarted(context.Context, string, string) (uuid.UUID, error) { return uuid.Nil, nil }
func (noHistory) RunFinished(context.Context, uuid.UUID, bool, string) error    { return nil }
func (noHistory) Close()                                                       {}

// NewHistory returns a PgHistory when databaseURL is set, else the no-op.
func NewHistory(ctx context.Context, databaseURL string) (History, error) {
	if databaseURL == "" {
		return noHistory{}, nil
	}
	return NewPgHistory(ctx, databaseURL)
}
