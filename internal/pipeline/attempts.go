// Package pipeline drives the geocoding cascade: the orchestrator runs one
// provider over its share of the voter file and persists attempts; the
// reconciler folds all attempts into each voter's authoritative coordinate.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/kerryhatcher/vote-match/internal/db"
	"github.com/kerryhatcher/vote-match/pkg/geocode"
)

var attemptColumns = []string{
	"voter_id",
	"provider",
	"quality",
	"latitude",
	"longitude",
	"matched_address",
	"raw_response",
	"attempted_at",
}

// AttemptStore persists geocode attempts keyed (voter_id, provider):
// re-attempting a voter with the same provider overwrites, never appends.
type AttemptStore struct {
	pool db.Pool
}

// NewAttemptStore creates an attempt store backed by pool.
func NewAttemptStore(pool db.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// SaveBatch upserts attempts in independently committed chunks.
func (s *AttemptStore) SaveBatch(ctx context.Context, attempts []geocode.Attempt, chunkSize int) (int64, error) {
	rows := make([][]any, len(attempts))
	for i, a := range attempts {
		rows[i] = []any{
			a.VoterID,
			a.Provider,
			string(a.Quality),
			a.Latitude,
			a.Longitude,
			a.MatchedAddress,
			a.Raw,
			a.AttemptedAt,
		}
	}

	cfg := db.UpsertConfig{
		Table:        "geocode_attempts",
		Columns:      attemptColumns,
		ConflictKeys: []string{"voter_id", "provider"},
		UpdateCols:   attemptColumns[2:],
	}
	return db.ChunkedUpsert(ctx, s.pool, cfg, rows, chunkSize)
}

// DeleteAttempts removes stored attempts matching the optional provider and
// quality filters. Both filters empty deletes every attempt, so the caller
// gates that behind an explicit flag. Returns the number of rows removed.
func (s *AttemptStore) DeleteAttempts(ctx context.Context, provider string, quality geocode.Quality) (int64, error) {
	query := "DELETE FROM geocode_attempts"
	var (
		clauses []string
		args    []any
	)
	if provider != "" {
		args = append(args, provider)
		clauses = append(clauses, fmt.Sprintf("provider = $%d", len(args)))
	}
	if quality != "" {
		args = append(args, string(quality))
		clauses = append(clauses, fmt.Sprintf("quality = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: delete attempts")
	}
	return tag.RowsAffected(), nil
}

// bestQualityRankSQL mirrors geocode.Quality.Rank for in-query ordering.
const bestQualityRankSQL = `CASE ga.quality
		WHEN 'EXACT' THEN 5
		WHEN 'INTERPOLATED' THEN 4
		WHEN 'APPROXIMATE' THEN 3
		WHEN 'NO_MATCH' THEN 2
		WHEN 'FAILED' THEN 1
		ELSE 0 END`

// BestAttempt is the winning attempt for one voter: highest quality tier,
// ties broken by the most recent timestamp.
type BestAttempt struct {
	VoterID   string
	Quality   geocode.Quality
	Latitude  *float64
	Longitude *float64
}

// BestAttempts returns the winning attempt per voter, ordered by voter id.
// With onlyUnresolved, voters that already have a coordinate are skipped.
// Limit zero selects nothing; negative means no cap.
func (s *AttemptStore) BestAttempts(ctx context.Context, onlyUnresolved bool, limit int) ([]BestAttempt, error) {
	if limit == 0 {
		return nil, nil
	}

	query := `
		SELECT best.voter_id, best.quality, best.latitude, best.longitude
		FROM (
			SELECT DISTINCT ON (ga.voter_id)
				ga.voter_id, ga.quality, ga.latitude, ga.longitude
			FROM geocode_attempts ga
			ORDER BY ga.voter_id, ` + bestQualityRankSQL + ` DESC, ga.attempted_at DESC
		) best
		JOIN voters v ON v.registration_number = best.voter_id`
	if onlyUnresolved {
		query += `
		WHERE v.latitude IS NULL`
	}
	query += `
		ORDER BY best.voter_id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: select best attempts")
	}
	defer rows.Close()

	var best []BestAttempt
	for rows.Next() {
		var b BestAttempt
		var quality string
		if err := rows.Scan(&b.VoterID, &quality, &b.Latitude, &b.Longitude); err != nil {
			return nil, eris.Wrap(err, "pipeline: scan best attempt")
		}
		b.Quality = geocode.Quality(quality)
		best = append(best, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: iterate best attempts")
	}

	return best, nil
}
