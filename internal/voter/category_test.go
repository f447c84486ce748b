package voter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCategories_StableOrder(t *testing.T) {
	cats := BuiltinCategories()
	require.NotEmpty(t, cats)

	keys := make([]string, len(cats))
	for i, c := range cats {
		keys[i] = c.Key
		assert.True(t, registeredColumns[c.VoterColumn], "built-in category %q must use an allowed column", c.Key)
	}

	assert.Equal(t, "congressional", keys[0])
	assert.Equal(t, keys, func() []string {
		again := BuiltinCategories()
		out := make([]string, len(again))
		for i, c := range again {
			out[i] = c.Key
		}
		return out
	}())
}

func TestLoadCategories_EmptyPathUsesBuiltins(t *testing.T) {
	cats, err := LoadCategories("")
	require.NoError(t, err)
	assert.Equal(t, BuiltinCategories(), cats)
}

func TestLoadCategories_FileReplacesSet(t *testing.T) {
	path := writeCategoryFile(t, `
categories:
  - key: school_board
    label: School Board
    voter_column: school_district
  - key: water
    label: Water Authority
    voter_column: water_board_district
`)

	cats, err := LoadCategories(path)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "school_board", cats[0].Key)
	assert.Equal(t, "water", cats[1].Key)
	assert.Equal(t, "water_board_district", cats[1].VoterColumn)
}

func TestLoadCategories_RejectsUnknownColumn(t *testing.T) {
	path := writeCategoryFile(t, `
categories:
  - key: sneaky
    label: Sneaky
    voter_column: "registration_number; DROP TABLE voters"
`)

	_, err := LoadCategories(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown voter column")
}

func TestLoadCategories_RejectsDuplicateKey(t *testing.T) {
	path := writeCategoryFile(t, `
categories:
  - key: fire
    voter_column: fire_district
  - key: fire
    voter_column: fire_district
`)

	_, err := LoadCategories(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestLoadCategories_MissingFile(t *testing.T) {
	_, err := LoadCategories(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestFindCategory(t *testing.T) {
	cats := BuiltinCategories()

	c, ok := FindCategory(cats, "psc")
	require.True(t, ok)
	assert.Equal(t, "psc_district", c.VoterColumn)

	_, ok = FindCategory(cats, "hoa")
	assert.False(t, ok)
}

func writeCategoryFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}
