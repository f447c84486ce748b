package boundary

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

const sampleCollection = `{
	"type": "FeatureCollection",
	"features": [
		{
			"type": "Feature",
			"properties": {"DISTRICT": 5, "NAME": "DISTRICT FIVE"},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[[-84.5, 33.5], [-84.4, 33.5], [-84.4, 33.6], [-84.5, 33.6], [-84.5, 33.5]]]
			}
		},
		{
			"type": "Feature",
			"properties": {"GEOID": "13121", "NAMELSAD": "Fulton County"},
			"geometry": {
				"type": "MultiPolygon",
				"coordinates": [[[[-84.6, 33.6], [-84.5, 33.6], [-84.5, 33.7], [-84.6, 33.7], [-84.6, 33.6]]]]
			}
		},
		{
			"type": "Feature",
			"properties": {"NAME": "A Point, Not A District"},
			"geometry": {"type": "Point", "coordinates": [-84.5, 33.5]}
		}
	]
}`

func TestParseGeoJSON(t *testing.T) {
	polys, err := ParseGeoJSON(strings.NewReader(sampleCollection), "school_board")
	require.NoError(t, err)
	require.Len(t, polys, 2, "point feature dropped")

	assert.Equal(t, "school_board", polys[0].Category)
	assert.Equal(t, "5", polys[0].DistrictID, "numeric property stringified")
	assert.Equal(t, "District Five", polys[0].Name, "all-caps name retitled")

	assert.Equal(t, "13121", polys[1].DistrictID)
	assert.Equal(t, "Fulton County", polys[1].Name)

	for _, p := range polys {
		g, err := ewkb.Unmarshal(p.Geom)
		require.NoError(t, err)
		assert.Equal(t, 4326, g.SRID())
	}
}

func TestParseGeoJSON_BadInput(t *testing.T) {
	_, err := ParseGeoJSON(strings.NewReader("not json"), "fire")
	assert.Error(t, err)
}

func TestParseGeoJSON_EmptyCollection(t *testing.T) {
	polys, err := ParseGeoJSON(strings.NewReader(`{"type":"FeatureCollection","features":[]}`), "fire")
	require.NoError(t, err)
	assert.Empty(t, polys)
}
