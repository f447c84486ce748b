// Package boundary imports district boundary polygons from GeoJSON and
// shapefile sources and answers point-in-polygon lookups against them.
package boundary

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidGeometry marks a polygon that could not be stored even after a
// repair attempt. It is absorbed into import stats, never fatal to a run.
var ErrInvalidGeometry = eris.New("boundary: invalid geometry")

// Polygon is one district boundary ready for import: EWKB MultiPolygon in
// SRID 4326 plus the identifying properties sniffed from the source file.
type Polygon struct {
	Category   string
	DistrictID string
	Name       string
	Properties map[string]string
	Geom       []byte
}

// ImportStats summarizes one import run. Total = Imported + Skipped + Failed;
// Repaired counts polygons that went through ST_MakeValid before landing.
type ImportStats struct {
	Total    int
	Imported int
	Repaired int
	Skipped  int
	Failed   int
}

// Property keys tried in order when a source file does not label its
// district id and name columns consistently. TIGER files use GEOID and
// NAMELSAD; county GIS exports tend toward DISTRICT/NAME variants.
var (
	districtIDKeys = []string{"district", "district_n", "district_id", "districtno", "dist", "geoid", "geoid20", "id"}
	nameKeys       = []string{"name", "namelsad", "namelsad20", "district_name", "label"}
)

var titleCaser = cases.Title(language.AmericanEnglish)

// sniffProperties pulls the district id and display name out of a feature's
// property map, case-insensitively. The id falls back to the name, the name
// falls back to the id.
func sniffProperties(props map[string]string) (id, name string) {
	lower := make(map[string]string, len(props))
	for k, v := range props {
		lower[strings.ToLower(k)] = strings.TrimSpace(v)
	}

	for _, key := range districtIDKeys {
		if v := lower[key]; v != "" {
			id = v
			break
		}
	}
	for _, key := range nameKeys {
		if v := lower[key]; v != "" {
			name = v
			break
		}
	}

	if id == "" {
		id = name
	}
	if name == "" {
		name = id
	}
	return id, DisplayName(name)
}

// DisplayName normalizes an all-caps source name ("FULTON COUNTY SCHOOL
// DISTRICT") into title case. Mixed-case names pass through untouched.
func DisplayName(name string) string {
	if name == "" || name != strings.ToUpper(name) {
		return name
	}
	return titleCaser.String(strings.ToLower(name))
}
