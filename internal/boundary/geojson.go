package boundary

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// ParseGeoJSON reads a FeatureCollection and returns one Polygon per
// polygonal feature. Non-polygon features are dropped with a debug log;
// a feature whose geometry cannot be encoded counts against the import
// later, not here.
func ParseGeoJSON(r io.Reader, category string) ([]Polygon, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: read geojson")
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "boundary: decode geojson")
	}

	var polys []Polygon
	var dropped int
	for _, feat := range fc.Features {
		mp := toMultiPolygon(feat.Geometry)
		if mp == nil {
			dropped++
			continue
		}

		wkb, err := ewkb.Marshal(mp.SetSRID(4326), ewkb.NDR)
		if err != nil {
			dropped++
			continue
		}

		props := stringProperties(feat.Properties)
		id, name := sniffProperties(props)
		polys = append(polys, Polygon{
			Category:   category,
			DistrictID: id,
			Name:       name,
			Properties: props,
			Geom:       wkb,
		})
	}

	if dropped > 0 {
		zap.L().Debug("boundary: dropped non-polygon features",
			zap.String("category", category),
			zap.Int("dropped", dropped),
		)
	}
	return polys, nil
}

// toMultiPolygon lifts a Polygon into a single-member MultiPolygon so every
// stored geometry has the same type.
func toMultiPolygon(g geom.T) *geom.MultiPolygon {
	switch s := g.(type) {
	case *geom.MultiPolygon:
		return s
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(s.Layout())
		if err := mp.Push(s); err != nil {
			return nil
		}
		return mp
	default:
		return nil
	}
}

// stringProperties flattens GeoJSON property values to strings, which is all
// the sniffer and the metadata column need.
func stringProperties(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case float64:
			// JSON numbers arrive as float64; district ids are integral.
			if val == float64(int64(val)) {
				out[k] = fmt.Sprintf("%d", int64(val))
			} else {
				out[k] = fmt.Sprintf("%g", val)
			}
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}
