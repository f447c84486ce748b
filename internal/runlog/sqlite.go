package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteJournal stores runs in a local SQLite file, for deployments without
// a second Postgres connection to spare.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite journal at dsn and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteJournal, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqldb.Exec(pragma); err != nil {
			_ = sqldb.Close()
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}
	return &SQLiteJournal{db: sqldb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS run_history (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	params      TEXT,
	stats       TEXT,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_run_history_kind ON run_history(kind);
CREATE INDEX IF NOT EXISTS idx_run_history_started_at ON run_history(started_at DESC);
`

func (j *SQLiteJournal) Migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "runlog: migrate sqlite")
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) Start(ctx context.Context, kind string, params any) (*Run, error) {
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

	var paramsText any
	if paramsJSON != nil {
		paramsText = string(paramsJSON)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO run_history (id, kind, status, params, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Status, paramsText, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: insert run")
	}
	return run, nil
}

func (j *SQLiteJournal) Finish(ctx context.Context, runID string, stats any, runErr error) error {
	statsJSON, err := marshalOrNil(stats)
	if err != nil {
		return eris.Wrap(err, "runlog: marshal stats")
	}
	status, msg := statusFor(runErr)

	var statsText any
	if statsJSON != nil {
		statsText = string(statsJSON)
	}
	res, err := j.db.ExecContext(ctx,
		`UPDATE run_history SET status = ?, stats = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, statsText, msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "runlog: finish run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("runlog: run %s not found", runID)
	}
	return nil
}

func (j *SQLiteJournal) List(ctx context.Context, filter Filter) ([]Run, error) {
	query := `SELECT id, kind, status, params, stats, error, started_at, finished_at FROM run_history`

	var conds []string
	var args []any
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT %d", limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []Run
	for rows.Next() {
		var (
			r      Run
			params sql.NullString
			stats  sql.NullString
			fin    sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Kind, &r.Status, &params, &stats, &r.Error, &r.StartedAt, &fin); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		if params.Valid {
			r.Params = []byte(params.String)
		}
		if stats.Valid {
			r.Stats = []byte(stats.String)
		}
		if fin.Valid {
			t := fin.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "runlog: iterate runs")
	}
	return out, nil
}
