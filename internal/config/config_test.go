package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "census", cfg.Geocode.DefaultProvider)
	assert.Equal(t, "GA", cfg.Geocode.DefaultState)
	assert.Equal(t, 10000, cfg.Geocode.BatchSize)
	assert.Equal(t, "Public_AR_Current", cfg.Providers.Census.Benchmark)
	assert.Equal(t, time.Second, cfg.Providers.Nominatim.RateLimitDelay)
	assert.Equal(t, 1000, cfg.Providers.Mapbox.BatchSize)
	assert.Equal(t, time.Second, cfg.Providers.Photon.RateLimitDelay)
	assert.Equal(t, 1000, cfg.Compare.ChunkSize)
	assert.Equal(t, "postgres", cfg.Runlog.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VOTE_MATCH_GEOCODE_DEFAULT_PROVIDER", "geocodio")
	t.Setenv("VOTE_MATCH_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "geocodio", cfg.Geocode.DefaultProvider)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir+"/config.yaml", `
geocode:
  default_provider: nominatim
providers:
  nominatim:
    email: ops@example.org
    rate_limit_delay: 2s
compare:
  chunk_size: 250
`)
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "nominatim", cfg.Geocode.DefaultProvider)
	assert.Equal(t, "ops@example.org", cfg.Providers.Nominatim.Email)
	assert.Equal(t, 2*time.Second, cfg.Providers.Nominatim.RateLimitDelay)
	assert.Equal(t, 250, cfg.Compare.ChunkSize)
	// Untouched keys keep defaults.
	assert.Equal(t, 10000, cfg.Providers.Census.BatchSize)
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouty", Format: "json"})
	assert.Error(t, err)
}
