package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kerryhatcher/vote-match/internal/db"
	"github.com/kerryhatcher/vote-match/internal/runlog"
	"github.com/kerryhatcher/vote-match/internal/voter"
	"github.com/kerryhatcher/vote-match/pkg/geocode"
)

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, eris.New("database.url is not configured (VOTE_MATCH_DATABASE_URL)")
	}
	return db.Connect(ctx, cfg.Database.URL, &cfg.Database.Pool)
}

// buildRegistry wires every configured provider. Registration order is the
// display order of the providers command.
func buildRegistry() (*geocode.Registry, error) {
	reg := geocode.NewRegistry()

	census := cfg.Providers.Census
	var censusOpts []geocode.CensusOption
	if census.BaseURL != "" {
		censusOpts = append(censusOpts, geocode.WithCensusBaseURL(census.BaseURL))
	}
	if census.Benchmark != "" {
		censusOpts = append(censusOpts, geocode.WithCensusBenchmark(census.Benchmark))
	}
	if census.Vintage != "" {
		censusOpts = append(censusOpts, geocode.WithCensusVintage(census.Vintage))
	}
	if census.BatchSize > 0 {
		censusOpts = append(censusOpts, geocode.WithCensusBatchSize(census.BatchSize))
	}
	if err := reg.Register(geocode.NewCensus(censusOpts...)); err != nil {
		return nil, err
	}

	geocodio := cfg.Providers.Geocodio
	var geocodioOpts []geocode.GeocodioOption
	if geocodio.BaseURL != "" {
		geocodioOpts = append(geocodioOpts, geocode.WithGeocodioBaseURL(geocodio.BaseURL))
	}
	if geocodio.BatchSize > 0 {
		geocodioOpts = append(geocodioOpts, geocode.WithGeocodioBatchSize(geocodio.BatchSize))
	}
	if err := reg.Register(geocode.NewGeocodio(geocodio.APIKey, geocodioOpts...)); err != nil {
		return nil, err
	}

	nominatim := cfg.Providers.Nominatim
	var nominatimOpts []geocode.NominatimOption
	if nominatim.BaseURL != "" {
		nominatimOpts = append(nominatimOpts, geocode.WithNominatimBaseURL(nominatim.BaseURL))
	}
	if nominatim.Email != "" {
		nominatimOpts = append(nominatimOpts, geocode.WithNominatimEmail(nominatim.Email))
	}
	if nominatim.RateLimitDelay > 0 {
		nominatimOpts = append(nominatimOpts, geocode.WithNominatimDelay(nominatim.RateLimitDelay))
	}
	if err := reg.Register(geocode.NewNominatim(nominatimOpts...)); err != nil {
		return nil, err
	}

	photon := cfg.Providers.Photon
	var photonOpts []geocode.PhotonOption
	if photon.BaseURL != "" {
		photonOpts = append(photonOpts, geocode.WithPhotonBaseURL(photon.BaseURL))
	}
	if photon.RateLimitDelay > 0 {
		photonOpts = append(photonOpts, geocode.WithPhotonDelay(photon.RateLimitDelay))
	}
	if err := reg.Register(geocode.NewPhoton(photonOpts...)); err != nil {
		return nil, err
	}

	mapbox := cfg.Providers.Mapbox
	var mapboxOpts []geocode.MapboxOption
	if mapbox.BaseURL != "" {
		mapboxOpts = append(mapboxOpts, geocode.WithMapboxBaseURL(mapbox.BaseURL))
	}
	if mapbox.BatchSize > 0 {
		mapboxOpts = append(mapboxOpts, geocode.WithMapboxBatchSize(mapbox.BatchSize))
	}
	if err := reg.Register(geocode.NewMapbox(mapbox.APIKey, mapboxOpts...)); err != nil {
		return nil, err
	}

	google := cfg.Providers.Google
	var googleOpts []geocode.GoogleOption
	if google.BaseURL != "" {
		googleOpts = append(googleOpts, geocode.WithGoogleBaseURL(google.BaseURL))
	}
	if google.RateLimitDelay > 0 {
		googleOpts = append(googleOpts, geocode.WithGoogleDelay(google.RateLimitDelay))
	}
	if err := reg.Register(geocode.NewGoogle(google.APIKey, googleOpts...)); err != nil {
		return nil, err
	}

	return reg, nil
}

// openJournal returns the configured run journal, already migrated. The
// postgres backend shares the application pool.
func openJournal(ctx context.Context, pool db.Pool) (runlog.Journal, error) {
	var j runlog.Journal
	switch cfg.Runlog.Driver {
	case "", "postgres":
		j = runlog.NewPostgres(pool)
	case "sqlite":
		dsn := cfg.Runlog.DSN
		if dsn == "" {
			dsn = "vote-match-runs.db"
		}
		sq, err := runlog.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		j = sq
	default:
		return nil, eris.Errorf("unknown runlog driver %q", cfg.Runlog.Driver)
	}

	if err := j.Migrate(ctx); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

// finishRun closes a journal entry. The pipeline outcome matters more than
// the journal write, so a journal failure is only logged.
func finishRun(ctx context.Context, j runlog.Journal, runID string, stats any, runErr error) {
	if err := j.Finish(ctx, runID, stats, runErr); err != nil {
		zap.L().Warn("run journal update failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func loadCategories() ([]voter.Category, error) {
	return voter.LoadCategories(cfg.Compare.CategoryFile)
}
