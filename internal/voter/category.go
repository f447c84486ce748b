package voter

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Category is one district classification axis: a stable key, a display
// label, and the voters column holding the registered value for that axis.
type Category struct {
	Key         string `yaml:"key" json:"key"`
	Label       string `yaml:"label" json:"label"`
	VoterColumn string `yaml:"voter_column" json:"voter_column"`
}

// registeredColumns is the allowlist of voters columns a category may read.
// Category files are user input; this keeps their column names out of SQL
// unless they name a real district column.
var registeredColumns = map[string]bool{
	"congressional_district":     true,
	"state_senate_district":      true,
	"state_house_district":       true,
	"judicial_district":          true,
	"county_commission_district": true,
	"school_district":            true,
	"city_council_district":      true,
	"water_board_district":       true,
	"fire_district":              true,
	"municipality":               true,
	"psc_district":               true,
}

// AllowedColumn reports whether col is a district column a category may
// reference.
func AllowedColumn(col string) bool {
	return registeredColumns[col]
}

// BuiltinCategories returns the default category set in its stable order.
func BuiltinCategories() []Category {
	return []Category{
		{Key: "congressional", Label: "Congressional", VoterColumn: "congressional_district"},
		{Key: "state_senate", Label: "State Senate", VoterColumn: "state_senate_district"},
		{Key: "state_house", Label: "State House", VoterColumn: "state_house_district"},
		{Key: "judicial", Label: "Judicial", VoterColumn: "judicial_district"},
		{Key: "county_commission", Label: "County Commission", VoterColumn: "county_commission_district"},
		{Key: "school_board", Label: "School Board", VoterColumn: "school_district"},
		{Key: "city_council", Label: "City Council", VoterColumn: "city_council_district"},
		{Key: "water_board", Label: "Water Board", VoterColumn: "water_board_district"},
		{Key: "fire", Label: "Fire", VoterColumn: "fire_district"},
		{Key: "municipality", Label: "Municipality", VoterColumn: "municipality"},
		{Key: "psc", Label: "Public Service Commission", VoterColumn: "psc_district"},
	}
}

// LoadCategories returns the category set from a YAML file, or the built-in
// set when path is empty. A file replaces the whole set; it does not extend
// it.
func LoadCategories(path string) ([]Category, error) {
	if path == "" {
		return BuiltinCategories(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "voter: read category file %s", path)
	}

	var doc struct {
		Categories []Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "voter: parse category file %s", path)
	}
	if len(doc.Categories) == 0 {
		return nil, eris.Errorf("voter: category file %s defines no categories", path)
	}

	seen := make(map[string]bool, len(doc.Categories))
	for _, c := range doc.Categories {
		if c.Key == "" {
			return nil, eris.Errorf("voter: category file %s: category with empty key", path)
		}
		if seen[c.Key] {
			return nil, eris.Errorf("voter: category file %s: duplicate key %q", path, c.Key)
		}
		seen[c.Key] = true
		if !registeredColumns[c.VoterColumn] {
			return nil, eris.Errorf("voter: category %q: unknown voter column %q", c.Key, c.VoterColumn)
		}
	}

	return doc.Categories, nil
}

// FindCategory returns the category with the given key.
func FindCategory(categories []Category, key string) (Category, bool) {
	for _, c := range categories {
		if c.Key == key {
			return c, true
		}
	}
	return Category{}, false
}
