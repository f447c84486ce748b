// Package report queries comparison results and serves them as CSV, XLSX,
// and a small JSON API.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kerryhatcher/vote-match/internal/db"
)

// Assignment is one voter/category comparison verdict. IsMismatch is nil
// when the verdict could not be computed (no containing boundary, or no
// registered value).
type Assignment struct {
	VoterID             string    `json:"voter_id"`
	Category            string    `json:"category"`
	RegisteredValue     string    `json:"registered_value"`
	SpatialDistrictID   *string   `json:"spatial_district_id"`
	SpatialDistrictName *string   `json:"spatial_district_name"`
	IsMismatch          *bool     `json:"is_mismatch"`
	ComparedAt          time.Time `json:"compared_at"`
}

// Query filters assignment reads. Mismatch nil means all verdicts; Limit
// zero means the default of 1000, negative means unlimited.
type Query struct {
	Category string
	Mismatch *bool
	Limit    int
}

// CategorySummary aggregates one category's verdicts for the status view.
type CategorySummary struct {
	Category   string `json:"category"`
	Total      int64  `json:"total"`
	Matched    int64  `json:"matched"`
	Mismatched int64  `json:"mismatched"`
	Unresolved int64  `json:"unresolved"`
}

// Store reads persisted comparison assignments.
type Store struct {
	pool db.Pool
}

func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Assignments returns verdicts matching the query, ordered by voter id.
func (s *Store) Assignments(ctx context.Context, q Query) ([]Assignment, error) {
	query := `SELECT voter_id, category, registered_value, spatial_district_id, spatial_district_name, is_mismatch, compared_at
		FROM voter_district_assignments`

	var conds []string
	var args []any
	if q.Category != "" {
		args = append(args, q.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if q.Mismatch != nil {
		args = append(args, *q.Mismatch)
		conds = append(conds, fmt.Sprintf("is_mismatch = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY voter_id, category"

	limit := q.Limit
	if limit == 0 {
		limit = 1000
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "report: query assignments")
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.VoterID, &a.Category, &a.RegisteredValue,
			&a.SpatialDistrictID, &a.SpatialDistrictName, &a.IsMismatch, &a.ComparedAt); err != nil {
			return nil, eris.Wrap(err, "report: scan assignment")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "report: iterate assignments")
	}
	return out, nil
}

// Summaries aggregates verdicts per category, ordered by category key.
func (s *Store) Summaries(ctx context.Context) ([]CategorySummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category,
			COUNT(*),
			COUNT(*) FILTER (WHERE is_mismatch = false),
			COUNT(*) FILTER (WHERE is_mismatch = true),
			COUNT(*) FILTER (WHERE is_mismatch IS NULL)
		FROM voter_district_assignments
		GROUP BY category
		ORDER BY category`)
	if err != nil {
		return nil, eris.Wrap(err, "report: query summaries")
	}
	defer rows.Close()

	var out []CategorySummary
	for rows.Next() {
		var cs CategorySummary
		if err := rows.Scan(&cs.Category, &cs.Total, &cs.Matched, &cs.Mismatched, &cs.Unresolved); err != nil {
			return nil, eris.Wrap(err, "report: scan summary")
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "report: iterate summaries")
	}
	return out, nil
}
