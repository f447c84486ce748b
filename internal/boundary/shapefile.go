package boundary

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// ParseShapefile reads district polygons from a .shp file. Every DBF
// attribute rides along as a property so the sniffer can pick id and name
// keys regardless of the agency that produced the file. Records without a
// polygonal shape are dropped.
func ParseShapefile(shpPath, category string) ([]Polygon, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldNames := make([]string, len(fields))
	for i, f := range fields {
		fieldNames[i] = strings.TrimRight(f.String(), "\x00")
	}

	var polys []Polygon
	var dropped int
	for reader.Next() {
		_, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			dropped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			dropped++
			continue
		}
		wkb, err := ewkb.Marshal(mp, ewkb.NDR)
		if err != nil {
			dropped++
			continue
		}

		props := make(map[string]string, len(fieldNames))
		for i, name := range fieldNames {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				props[name] = val
			}
		}

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
		zap.L().Debug("boundary: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("dropped", dropped),
		)
	}
	return polys, nil
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon
// in SRID 4326. Shapefile part boundaries become separate polygons; malformed
// rings are skipped individually.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("boundary: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("boundary: skipping malformed part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
