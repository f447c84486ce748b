package runlog

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_StartInsertsRunningRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO run_history`).
		WithArgs(pgxmock.AnyArg(), KindGeocode, StatusRunning, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	j := NewPostgres(mock)
	run, err := j.Start(context.Background(), KindGeocode, map[string]string{"provider": "census"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, StatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FinishUpdatesStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE run_history SET status`).
		WithArgs("run-1", StatusCompleted, pgxmock.AnyArg(), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	j := NewPostgres(mock)
	err = j.Finish(context.Background(), "run-1", map[string]int{"rows": 10}, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FinishUnknownRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE run_history SET status`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	j := NewPostgres(mock)
	err = j.Finish(context.Background(), "missing", nil, nil)
	assert.Error(t, err)
}

func TestPostgres_ListAppliesFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WHERE kind = \$1 AND status = \$2 ORDER BY started_at DESC LIMIT 10`).
		WithArgs(KindCompare, StatusFailed).
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind", "status", "params", "stats", "error", "started_at", "finished_at"}))

	j := NewPostgres(mock)
	runs, err := j.List(context.Background(), Filter{Kind: KindCompare, Status: StatusFailed, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
