package db

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// ChunkError reports a failure inside a chunked write with enough context
// for the caller to resume: the zero-based index of the failing chunk and
// the number of rows already durably committed.
type ChunkError struct {
	Index     int   // chunk that failed
	Committed int   // rows committed by prior chunks
	Err       error // underlying error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d rows committed: %v", e.Index, e.Committed, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// ChunkedUpsert partitions rows into ordered chunks of chunkSize and upserts
// each chunk with its own transaction, so a mid-sequence failure leaves all
// prior chunks durably applied. On error it returns the rows committed so
// far and a *ChunkError identifying the failing chunk.
func ChunkedUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		return 0, eris.New("db: chunked upsert: chunk size must be positive")
	}

	var committed int64
	for i := 0; i*chunkSize < len(rows); i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(rows))

		n, err := BulkUpsert(ctx, pool, cfg, rows[start:end])
		if err != nil {
			return committed, &ChunkError{Index: i, Committed: int(committed), Err: err}
		}
		committed += n

		if err := ctx.Err(); err != nil {
			// Interrupted between chunks: everything written so far stays
			// committed, the caller resumes from the next chunk.
			return committed, &ChunkError{Index: i + 1, Committed: int(committed), Err: err}
		}
	}

	return committed, nil
}
