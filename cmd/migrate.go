package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS voters (
	registration_number        TEXT PRIMARY KEY,
	status                     TEXT NOT NULL DEFAULT '',
	last_name                  TEXT NOT NULL DEFAULT '',
	first_name                 TEXT NOT NULL DEFAULT '',
	middle_name                TEXT NOT NULL DEFAULT '',
	name_suffix                TEXT NOT NULL DEFAULT '',
	birth_year                 TEXT NOT NULL DEFAULT '',
	street_number              TEXT NOT NULL DEFAULT '',
	street_direction           TEXT NOT NULL DEFAULT '',
	street_name                TEXT NOT NULL DEFAULT '',
	street_type                TEXT NOT NULL DEFAULT '',
	apt_unit                   TEXT NOT NULL DEFAULT '',
	city                       TEXT NOT NULL DEFAULT '',
	zipcode                    TEXT NOT NULL DEFAULT '',
	county                     TEXT NOT NULL DEFAULT '',
	county_precinct            TEXT NOT NULL DEFAULT '',
	congressional_district     TEXT NOT NULL DEFAULT '',
	state_senate_district      TEXT NOT NULL DEFAULT '',
	state_house_district       TEXT NOT NULL DEFAULT '',
	judicial_district          TEXT NOT NULL DEFAULT '',
	county_commission_district TEXT NOT NULL DEFAULT '',
	school_district            TEXT NOT NULL DEFAULT '',
	city_council_district      TEXT NOT NULL DEFAULT '',
	water_board_district       TEXT NOT NULL DEFAULT '',
	fire_district              TEXT NOT NULL DEFAULT '',
	municipality               TEXT NOT NULL DEFAULT '',
	psc_district               TEXT NOT NULL DEFAULT '',
	latitude                   DOUBLE PRECISION,
	longitude                  DOUBLE PRECISION,
	geom                       geometry(Point, 4326)
);

CREATE INDEX IF NOT EXISTS idx_voters_geom ON voters USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_voters_county ON voters (county);

CREATE TABLE IF NOT EXISTS geocode_attempts (
	voter_id        TEXT NOT NULL REFERENCES voters(registration_number),
	provider        TEXT NOT NULL,
	quality         TEXT NOT NULL,
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	matched_address TEXT NOT NULL DEFAULT '',
	raw_response    BYTEA,
	attempted_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (voter_id, provider)
);

CREATE INDEX IF NOT EXISTS idx_geocode_attempts_quality ON geocode_attempts (quality);

CREATE TABLE IF NOT EXISTS district_boundaries (
	category    TEXT NOT NULL,
	district_id TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	properties  JSONB,
	geom        geometry(MultiPolygon, 4326) NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (category, district_id)
);

CREATE INDEX IF NOT EXISTS idx_district_boundaries_geom ON district_boundaries USING GIST (geom);

CREATE TABLE IF NOT EXISTS voter_district_assignments (
	voter_id              TEXT NOT NULL REFERENCES voters(registration_number),
	category              TEXT NOT NULL,
	registered_value      TEXT NOT NULL DEFAULT '',
	spatial_district_id   TEXT,
	spatial_district_name TEXT,
	is_mismatch           BOOLEAN,
	compared_at           TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (voter_id, category)
);

CREATE INDEX IF NOT EXISTS idx_assignments_category ON voter_district_assignments (category);
CREATE INDEX IF NOT EXISTS idx_assignments_mismatch ON voter_district_assignments (is_mismatch) WHERE is_mismatch = true;
`

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if _, err := pool.Exec(ctx, schema); err != nil {
			return eris.Wrap(err, "migrate: apply schema")
		}

		journal, err := openJournal(ctx, pool)
		if err != nil {
			return err
		}
		defer journal.Close() //nolint:errcheck

		zap.L().Info("schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
