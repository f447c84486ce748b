package boundary

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kerryhatcher/vote-match/internal/db"
)

// District is the stored identity of a boundary, as returned by lookups.
type District struct {
	DistrictID string
	Name       string
}

// Store persists boundary polygons and answers containment queries. Geometry
// validation and repair happen in PostGIS so the stored polygons are exactly
// what the comparison engine will query.
type Store struct {
	pool db.Pool
}

func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Clear removes every boundary of a category ahead of a full re-import.
func (s *Store) Clear(ctx context.Context, category string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM district_boundaries WHERE category = $1`, category)
	if err != nil {
		return 0, eris.Wrapf(err, "boundary: clear category %s", category)
	}
	return tag.RowsAffected(), nil
}

// Import upserts polygons keyed (category, district_id), replacing any prior
// boundary with the same key. Invalid geometry goes through ST_MakeValid; a
// polygon that stays broken after repair is counted failed and the import
// continues. Polygons without a district id are skipped.
func (s *Store) Import(ctx context.Context, category string, polys []Polygon, clear bool) (ImportStats, error) {
	stats := ImportStats{Total: len(polys)}
	log := zap.L().With(zap.String("component", "boundary"), zap.String("category", category))

	if clear {
		removed, err := s.Clear(ctx, category)
		if err != nil {
			return stats, err
		}
		log.Info("cleared existing boundaries", zap.Int64("removed", removed))
	}

	for _, p := range polys {
		if p.DistrictID == "" {
			stats.Skipped++
			continue
		}

		geom, repaired, err := s.validGeometry(ctx, p.Geom)
		if err != nil {
			stats.Failed++
			log.Warn("rejecting polygon",
				zap.String("district_id", p.DistrictID),
				zap.Error(err),
			)
			continue
		}
		if repaired {
			stats.Repaired++
		}

		if err := s.upsert(ctx, category, p, geom); err != nil {
			return stats, err
		}
		stats.Imported++
	}

	log.Info("boundary import finished",
		zap.Int("total", stats.Total),
		zap.Int("imported", stats.Imported),
		zap.Int("repaired", stats.Repaired),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// validGeometry returns EWKB that PostGIS accepts as a valid MultiPolygon,
// repairing through ST_MakeValid when necessary. The second return reports
// whether a repair was applied.
func (s *Store) validGeometry(ctx context.Context, ewkb []byte) ([]byte, bool, error) {
	var valid bool
	row := s.pool.QueryRow(ctx, `SELECT ST_IsValid(ST_GeomFromEWKB($1))`, ewkb)
	if err := row.Scan(&valid); err != nil {
		return nil, false, eris.Wrap(ErrInvalidGeometry, err.Error())
	}
	if valid {
		return ewkb, false, nil
	}

	// ST_CollectionExtract(3) keeps only the polygonal pieces MakeValid
	// may split the geometry into.
	var (
		repaired []byte
		empty    bool
	)
	row = s.pool.QueryRow(ctx, `
		SELECT ST_AsEWKB(g), ST_IsEmpty(g)
		FROM (SELECT ST_Multi(ST_CollectionExtract(ST_MakeValid(ST_GeomFromEWKB($1)), 3)) AS g) fixed`,
		ewkb)
	if err := row.Scan(&repaired, &empty); err != nil {
		return nil, false, eris.Wrap(ErrInvalidGeometry, err.Error())
	}
	if empty || len(repaired) == 0 {
		return nil, false, eris.Wrap(ErrInvalidGeometry, "repair produced empty geometry")
	}
	return repaired, true, nil
}

func (s *Store) upsert(ctx context.Context, category string, p Polygon, geom []byte) error {
	props, err := json.Marshal(p.Properties)
	if err != nil {
		return eris.Wrapf(err, "boundary: encode properties for %s", p.DistrictID)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO district_boundaries (category, district_id, name, properties, geom, imported_at)
		VALUES ($1, $2, $3, $4, ST_GeomFromEWKB($5), now())
		ON CONFLICT (category, district_id) DO UPDATE SET
			name = EXCLUDED.name,
			properties = EXCLUDED.properties,
			geom = EXCLUDED.geom,
			imported_at = now()`,
		category, p.DistrictID, p.Name, string(props), geom)
	if err != nil {
		return eris.Wrapf(err, "boundary: upsert %s/%s", category, p.DistrictID)
	}
	return nil
}

// Lookup returns every district of a category containing the point, ordered
// by area then id so callers see the same order the tie-break uses.
func (s *Store) Lookup(ctx context.Context, category string, lon, lat float64) ([]District, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT district_id, name
		FROM district_boundaries
		WHERE category = $1 AND ST_Contains(geom, ST_SetSRID(ST_MakePoint($2, $3), 4326))
		ORDER BY ST_Area(geom) ASC, district_id ASC`,
		category, lon, lat)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: lookup %s", category)
	}
	defer rows.Close()

	var out []District
	for rows.Next() {
		var d District
		if err := rows.Scan(&d.DistrictID, &d.Name); err != nil {
			return nil, eris.Wrap(err, "boundary: scan lookup row")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "boundary: iterate lookup rows")
	}
	return out, nil
}

// LookupBest resolves overlapping boundaries to a single deterministic
// winner: smallest area first, then district id. Nil means no boundary of
// the category contains the point.
func (s *Store) LookupBest(ctx context.Context, category string, lon, lat float64) (*District, error) {
	all, err := s.Lookup(ctx, category, lon, lat)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return &all[0], nil
}

// Counts reports stored boundaries per category for the status command.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT category, COUNT(*) FROM district_boundaries GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: count by category")
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var category string
		var n int64
		if err := rows.Scan(&category, &n); err != nil {
			return nil, eris.Wrap(err, "boundary: scan count row")
		}
		out[category] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "boundary: iterate count rows")
	}
	return out, nil
}
