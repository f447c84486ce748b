package compare

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kerryhatcher/vote-match/internal/db"
	"github.com/kerryhatcher/vote-match/internal/voter"
)

// ErrCategoryLocked means another comparison run holds this category. The
// category is skipped; other categories in the same run proceed.
var ErrCategoryLocked = eris.New("compare: category locked by another run")

var assignmentColumns = []string{
	"voter_id",
	"category",
	"registered_value",
	"spatial_district_id",
	"spatial_district_name",
	"is_mismatch",
	"compared_at",
}

// CategoryResult is the per-category outcome of a comparison run. Completed
// is false when the category was aborted (lock busy, mid-chunk failure);
// re-running just that category converges without touching the others.
type CategoryResult struct {
	Category     string
	Total        int
	Matched      int
	Mismatched   int
	Unresolved   int
	NoRegistered int
	Completed    bool
	Err          error
}

// Engine runs district comparisons category by category.
type Engine struct {
	pool      db.Pool
	chunkSize int
}

// NewEngine creates a comparison engine. chunkSize bounds each assignment
// write transaction; zero means 1000.
func NewEngine(pool db.Pool, chunkSize int) *Engine {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &Engine{pool: pool, chunkSize: chunkSize}
}

// Run compares every voter with a coordinate against the boundaries of each
// requested category. Categories are independent: each one locks, commits,
// and reports on its own, and a failure in one never rolls back another.
// Limit zero compares nothing; negative means no cap.
func (e *Engine) Run(ctx context.Context, categories []voter.Category, limit int) []CategoryResult {
	results := make([]CategoryResult, 0, len(categories))
	for _, cat := range categories {
		results = append(results, e.runCategory(ctx, cat, limit))
	}
	return results
}

func (e *Engine) runCategory(ctx context.Context, cat voter.Category, limit int) CategoryResult {
	result := CategoryResult{Category: cat.Key}
	log := zap.L().With(zap.String("component", "compare"), zap.String("category", cat.Key))

	if !voter.AllowedColumn(cat.VoterColumn) {
		result.Err = eris.Errorf("compare: category %q references unknown column %q", cat.Key, cat.VoterColumn)
		return result
	}
	if limit == 0 {
		result.Completed = true
		return result
	}

	locked, err := e.tryLock(ctx, cat.Key)
	if err != nil {
		result.Err = err
		return result
	}
	if !locked {
		log.Warn("category locked, skipping")
		result.Err = eris.Wrapf(ErrCategoryLocked, "%s", cat.Key)
		return result
	}
	defer e.unlock(ctx, cat.Key)

	rows, err := e.lookup(ctx, cat, limit)
	if err != nil {
		result.Err = err
		return result
	}

	now := time.Now().UTC()
	assignments := make([][]any, 0, len(rows))
	for _, r := range rows {
		result.Total++

		var mismatch *bool
		switch {
		case r.SpatialID == nil:
			result.Unresolved++
		case r.Registered == "":
			result.NoRegistered++
		default:
			m := Normalize(r.Registered) != Normalize(*r.SpatialID)
			mismatch = &m
			if m {
				result.Mismatched++
			} else {
				result.Matched++
			}
		}

		assignments = append(assignments, []any{
			r.VoterID, cat.Key, r.Registered, r.SpatialID, r.SpatialName, mismatch, now,
		})
	}

	cfg := db.UpsertConfig{
		Table:        "voter_district_assignments",
		Columns:      assignmentColumns,
		ConflictKeys: []string{"voter_id", "category"},
		UpdateCols:   assignmentColumns[2:],
	}
	if _, err := db.ChunkedUpsert(ctx, e.pool, cfg, assignments, e.chunkSize); err != nil {
		result.Err = err
		return result
	}

	result.Completed = true
	log.Info("category compared",
		zap.Int("total", result.Total),
		zap.Int("matched", result.Matched),
		zap.Int("mismatched", result.Mismatched),
		zap.Int("unresolved", result.Unresolved),
	)
	return result
}

// lookupRow pairs a voter's registered value with the spatially derived
// district, already tie-broken by the query.
type lookupRow struct {
	VoterID     string
	Registered  string
	SpatialID   *string
	SpatialName *string
}

// lookup joins voters against containing boundaries. Overlapping source
// polygons are resolved deterministically: smallest area first, then
// district id.
func (e *Engine) lookup(ctx context.Context, cat voter.Category, limit int) ([]lookupRow, error) {
	query := fmt.Sprintf(`
		SELECT v.registration_number, COALESCE(v.%s, ''), d.district_id, d.name
		FROM voters v
		LEFT JOIN LATERAL (
			SELECT b.district_id, b.name
			FROM district_boundaries b
			WHERE b.category = $1 AND ST_Contains(b.geom, v.geom)
			ORDER BY ST_Area(b.geom) ASC, b.district_id ASC
			LIMIT 1
		) d ON TRUE
		WHERE v.geom IS NOT NULL
		ORDER BY v.registration_number`, cat.VoterColumn)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := e.pool.Query(ctx, query, cat.Key)
	if err != nil {
		return nil, eris.Wrapf(err, "compare: lookup %s", cat.Key)
	}
	defer rows.Close()

	var out []lookupRow
	for rows.Next() {
		var r lookupRow
		if err := rows.Scan(&r.VoterID, &r.Registered, &r.SpatialID, &r.SpatialName); err != nil {
			return nil, eris.Wrapf(err, "compare: scan lookup row for %s", cat.Key)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "compare: iterate lookup rows for %s", cat.Key)
	}

	return out, nil
}

// lockToken derives a stable advisory-lock key for a category.
func lockToken(category string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("vote-match:compare:" + category))
	return int64(h.Sum64())
}

func (e *Engine) tryLock(ctx context.Context, category string) (bool, error) {
	var locked bool
	row := e.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockToken(category))
	if err := row.Scan(&locked); err != nil {
		return false, eris.Wrapf(err, "compare: acquire lock for %s", category)
	}
	return locked, nil
}

func (e *Engine) unlock(ctx context.Context, category string) {
	var released bool
	row := e.pool.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, lockToken(category))
	if err := row.Scan(&released); err != nil {
		zap.L().Warn("compare: release lock failed",
			zap.String("category", category),
			zap.Error(err),
		)
	}
}
