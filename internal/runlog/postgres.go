package runlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/kerryhatcher/vote-match/internal/db"
)

// PostgresJournal stores runs in the application's Postgres database.
type PostgresJournal struct {
	pool db.Pool
}

func NewPostgres(pool db.Pool) *PostgresJournal {
	return &PostgresJournal{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS run_history (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	params      JSONB,
	stats       JSONB,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_run_history_kind ON run_history(kind);
CREATE INDEX IF NOT EXISTS idx_run_history_started_at ON run_history(started_at DESC);
`

func (j *PostgresJournal) Migrate(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "runlog: migrate")
}

// Close is a no-op: the pool belongs to the application.
func (j *PostgresJournal) Close() error { return nil }

func (j *PostgresJournal) Start(ctx context.Context, kind string, params any) (*Run, error) {
	paramsJSON, err := marshalOrNil(params)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: marshal params")
	}

	run := &Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusRunning,
		Params:    paramsJSON,
		StartedAt: time.Now().UTC(),
	}

	_, err = j.pool.Exec(ctx,
		`INSERT INTO run_history (id, kind, status, params, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Kind, run.Status, jsonText(run.Params), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: insert run")
	}
	return run, nil
}

func (j *PostgresJournal) Finish(ctx context.Context, runID string, stats any, runErr error) error {
	statsJSON, err := marshalOrNil(stats)
	if err != nil {
		return eris.Wrap(err, "runlog: marshal stats")
	}
	status, msg := statusFor(runErr)

	tag, err := j.pool.Exec(ctx,
		`UPDATE run_history SET status = $2, stats = $3, error = $4, finished_at = $5 WHERE id = $1`,
		runID, status, jsonText(statsJSON), msg, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "runlog: finish run")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("runlog: run %s not found", runID)
	}
	return nil
}

func (j *PostgresJournal) List(ctx context.Context, filter Filter) ([]Run, error) {
	query := `SELECT id, kind, status, params, stats, error, started_at, finished_at FROM run_history`

	var conds []string
	var args []any
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT %d", limit)

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.Status, &r.Params, &r.Stats, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "runlog: iterate runs")
	}
	return out, nil
}
