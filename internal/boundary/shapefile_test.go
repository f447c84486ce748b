package boundary

import (
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func square(x, y, size float64) []shp.Point {
	return []shp.Point{
		{X: x, Y: y},
		{X: x, Y: y + size},
		{X: x + size, Y: y + size},
		{X: x + size, Y: y},
		{X: x, Y: y},
	}
}

func TestPolygonToMultiPolygon(t *testing.T) {
	pts := square(-84.5, 33.5, 0.1)
	p := &shp.Polygon{
		NumParts:  1,
		NumPoints: int32(len(pts)),
		Parts:     []int32{0},
		Points:    pts,
	}

	mp := polygonToMultiPolygon(p)
	require.NotNil(t, mp)
	assert.Equal(t, 4326, mp.SRID())
	assert.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, geom.Coord{-84.5, 33.5}, mp.Polygon(0).LinearRing(0).Coord(0))
}

func TestPolygonToMultiPolygon_MultipleParts(t *testing.T) {
	a := square(-84.5, 33.5, 0.1)
	b := square(-84.2, 33.2, 0.1)
	p := &shp.Polygon{
		NumParts:  2,
		NumPoints: int32(len(a) + len(b)),
		Parts:     []int32{0, int32(len(a))},
		Points:    append(append([]shp.Point{}, a...), b...),
	}

	mp := polygonToMultiPolygon(p)
	require.NotNil(t, mp)
	assert.Equal(t, 2, mp.NumPolygons())
}

func TestPolygonToMultiPolygon_Empty(t *testing.T) {
	assert.Nil(t, polygonToMultiPolygon(nil))
	assert.Nil(t, polygonToMultiPolygon(&shp.Polygon{}))
}

func TestParseShapefile_MissingFile(t *testing.T) {
	_, err := ParseShapefile("/nonexistent/path.shp", "fire")
	assert.Error(t, err)
}
