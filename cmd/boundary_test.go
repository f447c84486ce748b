package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBoundaryFile_UnsupportedExtension(t *testing.T) {
	_, err := parseBoundaryFile("bounds.kml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported boundary file")
}

func TestParseBoundaryFile_GeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bounds.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))

	polys, err := parseBoundaryFile(path)
	require.NoError(t, err)
	assert.Empty(t, polys)
}

func TestParseBoundaryFile_MissingGeoJSON(t *testing.T) {
	_, err := parseBoundaryFile("/nonexistent/bounds.geojson")
	assert.Error(t, err)
}
