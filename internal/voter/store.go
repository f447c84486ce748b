package voter

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kerryhatcher/vote-match/internal/db"
	"github.com/kerryhatcher/vote-match/pkg/geocode"
)

// voterColumns is the column order for bulk voter writes. Coordinates and
// geom are deliberately absent: ingestion never touches them.
var voterColumns = []string{
	"registration_number",
	"status",
	"last_name",
	"first_name",
	"middle_name",
	"name_suffix",
	"birth_year",
	"street_number",
	"street_direction",
	"street_name",
	"street_type",
	"apt_unit",
	"city",
	"zipcode",
	"county",
	"county_precinct",
	"congressional_district",
	"state_senate_district",
	"state_house_district",
	"judicial_district",
	"county_commission_district",
	"school_district",
	"city_council_district",
	"water_board_district",
	"fire_district",
	"municipality",
	"psc_district",
}

// selectColumns is voterColumns plus the reconciler-owned coordinates.
var selectColumns = append(append([]string{}, voterColumns...), "latitude", "longitude")

// qualityRankSQL orders attempt qualities best-first inside queries, the
// same ordering geocode.Quality.Rank uses.
const qualityRankSQL = `CASE ga.quality
		WHEN 'EXACT' THEN 5
		WHEN 'INTERPOLATED' THEN 4
		WHEN 'APPROXIMATE' THEN 3
		WHEN 'NO_MATCH' THEN 2
		WHEN 'FAILED' THEN 1
		ELSE 0 END`

// Store reads and writes voter rows.
type Store struct {
	pool db.Pool
}

// NewStore creates a voter store backed by pool.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

func (v *Voter) row() []any {
	return []any{
		v.RegistrationNumber,
		v.Status,
		v.LastName,
		v.FirstName,
		v.MiddleName,
		v.NameSuffix,
		v.BirthYear,
		v.StreetNumber,
		v.StreetDirection,
		v.StreetName,
		v.StreetType,
		v.AptUnit,
		v.City,
		v.ZipCode,
		v.County,
		v.CountyPrecinct,
		v.CongressionalDistrict,
		v.StateSenateDistrict,
		v.StateHouseDistrict,
		v.JudicialDistrict,
		v.CountyCommissionDistrict,
		v.SchoolDistrict,
		v.CityCouncilDistrict,
		v.WaterBoardDistrict,
		v.FireDistrict,
		v.Municipality,
		v.PSCDistrict,
	}
}

// UpsertBatch writes voters keyed by registration number in independently
// committed chunks. Existing rows keep their coordinates; every
// ingestion-owned column is refreshed.
func (s *Store) UpsertBatch(ctx context.Context, voters []Voter, chunkSize int) (int64, error) {
	rows := make([][]any, len(voters))
	for i := range voters {
		rows[i] = voters[i].row()
	}

	cfg := db.UpsertConfig{
		Table:        "voters",
		Columns:      voterColumns,
		ConflictKeys: []string{"registration_number"},
		UpdateCols:   voterColumns[1:],
	}
	return db.ChunkedUpsert(ctx, s.pool, cfg, rows, chunkSize)
}

// SelectOptions picks which voters a geocoding run processes.
type SelectOptions struct {
	// Provider is the provider about to run.
	Provider string

	// Secondary selects voters whose best attempt so far missed, instead of
	// voters never attempted.
	Secondary bool

	// RetryFailed additionally selects voters whose attempt with Provider
	// itself is FAILED.
	RetryFailed bool

	// Limit caps the selection. Zero selects nothing; negative means no cap.
	Limit int
}

// SelectForGeocoding returns the voters the cascade assigns to a provider,
// ordered by registration number. A primary run takes voters with no
// attempts at all; a secondary run takes voters whose best attempt across
// all providers is NO_MATCH or FAILED.
func (s *Store) SelectForGeocoding(ctx context.Context, opts SelectOptions) ([]Voter, error) {
	if opts.Limit == 0 {
		return nil, nil
	}

	var predicate string
	if opts.Secondary {
		predicate = `EXISTS (
			SELECT 1 FROM (
				SELECT ga.quality
				FROM geocode_attempts ga
				WHERE ga.voter_id = v.registration_number
				ORDER BY ` + qualityRankSQL + ` DESC, ga.attempted_at DESC
				LIMIT 1
			) best WHERE best.quality IN ('NO_MATCH', 'FAILED')
		)`
	} else {
		predicate = `NOT EXISTS (
			SELECT 1 FROM geocode_attempts ga WHERE ga.voter_id = v.registration_number
		)`
	}

	args := []any{}
	if opts.RetryFailed {
		predicate = "(" + predicate + ` OR EXISTS (
			SELECT 1 FROM geocode_attempts ga
			WHERE ga.voter_id = v.registration_number
			  AND ga.provider = $1 AND ga.quality = 'FAILED'
		))`
		args = append(args, opts.Provider)
	}

	query := fmt.Sprintf(`SELECT %s FROM voters v WHERE %s ORDER BY v.registration_number`,
		"v."+strings.Join(selectColumns, ", v."), predicate)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "voter: select for geocoding")
	}
	defer rows.Close()

	var voters []Voter
	for rows.Next() {
		var v Voter
		if err := rows.Scan(
			&v.RegistrationNumber, &v.Status, &v.LastName, &v.FirstName, &v.MiddleName,
			&v.NameSuffix, &v.BirthYear, &v.StreetNumber, &v.StreetDirection, &v.StreetName,
			&v.StreetType, &v.AptUnit, &v.City, &v.ZipCode, &v.County, &v.CountyPrecinct,
			&v.CongressionalDistrict, &v.StateSenateDistrict, &v.StateHouseDistrict,
			&v.JudicialDistrict, &v.CountyCommissionDistrict, &v.SchoolDistrict,
			&v.CityCouncilDistrict, &v.WaterBoardDistrict, &v.FireDistrict,
			&v.Municipality, &v.PSCDistrict, &v.Latitude, &v.Longitude,
		); err != nil {
			return nil, eris.Wrap(err, "voter: scan voter row")
		}
		voters = append(voters, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "voter: iterate voter rows")
	}

	return voters, nil
}

// CoordinateUpdate is one reconciled coordinate write. Nil coordinates
// clear the voter's location (the best attempt was a miss).
type CoordinateUpdate struct {
	RegistrationNumber string
	Latitude           *float64
	Longitude          *float64
}

// ApplyCoordinates writes reconciled coordinates back to voters in
// independently committed chunks, maintaining the PostGIS point alongside
// the raw columns. On failure the error carries a db.ChunkError with the
// resume offset.
func (s *Store) ApplyCoordinates(ctx context.Context, updates []CoordinateUpdate, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		return 0, eris.Errorf("voter: invalid chunk size %d", chunkSize)
	}
	if len(updates) == 0 {
		return 0, nil
	}

	const stmt = `UPDATE voters SET
			latitude = $2,
			longitude = $3,
			geom = CASE WHEN $2::double precision IS NULL OR $3::double precision IS NULL
				THEN NULL
				ELSE ST_SetSRID(ST_MakePoint($3, $2), 4326) END
		WHERE registration_number = $1`

	var applied int64
	total := (len(updates) + chunkSize - 1) / chunkSize
	for i := 0; i < len(updates); i += chunkSize {
		end := min(i+chunkSize, len(updates))
		idx := i / chunkSize

		if err := s.applyChunk(ctx, stmt, updates[i:end]); err != nil {
			return applied, &db.ChunkError{Index: idx, Committed: int(applied), Err: err}
		}
		applied += int64(end - i)

		zap.L().Debug("coordinate chunk committed",
			zap.Int("chunk", idx+1),
			zap.Int("total_chunks", total),
		)

		if err := ctx.Err(); err != nil {
			return applied, &db.ChunkError{Index: idx + 1, Committed: int(applied), Err: err}
		}
	}

	return applied, nil
}

func (s *Store) applyChunk(ctx context.Context, stmt string, chunk []CoordinateUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "voter: begin coordinate chunk")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, u := range chunk {
		if _, err := tx.Exec(ctx, stmt, u.RegistrationNumber, u.Latitude, u.Longitude); err != nil {
			return eris.Wrapf(err, "voter: update coordinates for %s", u.RegistrationNumber)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "voter: commit coordinate chunk")
	}
	return nil
}

// StatusCounts summarizes geocoding progress for the status command.
type StatusCounts struct {
	TotalVoters     int64
	WithCoordinates int64
	BestQuality     map[geocode.Quality]int64
}

// CountsByStatus reports voter totals and the distribution of best attempt
// quality per voter.
func (s *Store) CountsByStatus(ctx context.Context) (StatusCounts, error) {
	counts := StatusCounts{BestQuality: make(map[geocode.Quality]int64)}

	row := s.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(latitude) FROM voters`)
	if err := row.Scan(&counts.TotalVoters, &counts.WithCoordinates); err != nil {
		return counts, eris.Wrap(err, "voter: count voters")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT best.quality, COUNT(*) FROM (
			SELECT DISTINCT ON (ga.voter_id) ga.quality
			FROM geocode_attempts ga
			ORDER BY ga.voter_id, `+qualityRankSQL+` DESC, ga.attempted_at DESC
		) best GROUP BY best.quality`)
	if err != nil {
		return counts, eris.Wrap(err, "voter: count attempt quality")
	}
	defer rows.Close()

	for rows.Next() {
		var quality string
		var n int64
		if err := rows.Scan(&quality, &n); err != nil {
			return counts, eris.Wrap(err, "voter: scan quality count")
		}
		counts.BestQuality[geocode.Quality(quality)] = n
	}
	if err := rows.Err(); err != nil {
		return counts, eris.Wrap(err, "voter: iterate quality counts")
	}

	return counts, nil
}
