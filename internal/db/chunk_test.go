package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectChunk(mock pgxmock.PgxPoolIface, table string, cols []string, n int64) {
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_" + table}, cols).WillReturnResult(n)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", n))
	mock.ExpectCommit()
}

func TestChunkedUpsert_AllChunksCommit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"id", "value"}
	expectChunk(mock, "things", cols, 2)
	expectChunk(mock, "things", cols, 2)
	expectChunk(mock, "things", cols, 1)

	rows := [][]any{{"1", "a"}, {"2", "b"}, {"3", "c"}, {"4", "d"}, {"5", "e"}}
	n, err := ChunkedUpsert(context.Background(), mock, UpsertConfig{
		Table:        "things",
		Columns:      cols,
		ConflictKeys: []string{"id"},
	}, rows, 2)

	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkedUpsert_MidSequenceFailureReportsResumePoint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"id", "value"}
	expectChunk(mock, "things", cols, 2)

	// Second chunk fails during COPY; the first stays committed.
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_things"}, cols).WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	rows := [][]any{{"1", "a"}, {"2", "b"}, {"3", "c"}, {"4", "d"}}
	n, err := ChunkedUpsert(context.Background(), mock, UpsertConfig{
		Table:        "things",
		Columns:      cols,
		ConflictKeys: []string{"id"},
	}, rows, 2)

	require.Error(t, err)
	assert.Equal(t, int64(2), n)

	var chunkErr *ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Index)
	assert.Equal(t, 2, chunkErr.Committed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkedUpsert_InvalidChunkSize(t *testing.T) {
	_, err := ChunkedUpsert(context.Background(), nil, UpsertConfig{}, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk size must be positive")
}
