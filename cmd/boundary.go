package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kerryhatcher/vote-match/internal/boundary"
	"github.com/kerryhatcher/vote-match/internal/runlog"
	"github.com/kerryhatcher/vote-match/internal/voter"
)

var (
	boundaryCategory string
	boundaryClear    bool
)

var boundaryCmd = &cobra.Command{
	Use:   "boundary",
	Short: "Manage district boundary polygons",
}

var boundaryImportCmd = &cobra.Command{
	Use:   "import <file-or-url> [more...]",
	Short: "Import boundary polygons from GeoJSON, shapefile, or archive URL",
	Long: `Imports district boundaries for one category. Sources can be local .geojson
or .shp files, or http(s):// and ftp:// URLs of zipped shapefile archives.
Polygons replace any prior boundary with the same district id; --clear wipes
the whole category first. Invalid polygons are repaired where possible and
otherwise rejected individually.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		categories, err := loadCategories()
		if err != nil {
			return err
		}
		if _, ok := voter.FindCategory(categories, boundaryCategory); !ok {
			return eris.Errorf("unknown category %q", boundaryCategory)
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		journal, err := openJournal(ctx, pool)
		if err != nil {
			return err
		}
		defer journal.Close() //nolint:errcheck

		run, err := journal.Start(ctx, runlog.KindImport, map[string]any{
			"category": boundaryCategory,
			"sources":  args,
			"clear":    boundaryClear,
		})
		if err != nil {
			return err
		}

		polys, runErr := collectPolygons(cmd, args)

		var stats boundary.ImportStats
		if runErr == nil {
			store := boundary.NewStore(pool)
			stats, runErr = store.Import(ctx, boundaryCategory, polys, boundaryClear)
		}

		finishRun(ctx, journal, run.ID, stats, runErr)
		if runErr != nil {
			return runErr
		}

		fmt.Printf("Imported %d/%d polygon(s) for %s (%d repaired, %d skipped, %d failed)\n",
			stats.Imported, stats.Total, boundaryCategory, stats.Repaired, stats.Skipped, stats.Failed)
		return nil
	},
}

// collectPolygons parses every source into one polygon list. URLs are
// fetched in parallel first so slow mirrors overlap.
func collectPolygons(cmd *cobra.Command, sources []string) ([]boundary.Polygon, error) {
	ctx := cmd.Context()

	var urls []string
	var local []string
	for _, src := range sources {
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "ftp://") {
			urls = append(urls, src)
		} else {
			local = append(local, src)
		}
	}

	paths := local
	if len(urls) > 0 {
		fetcher := boundary.NewFetcher(tempDir(), cfg.Boundaries.FetchTimeout, cfg.Boundaries.Concurrency)
		fetched, err := fetcher.FetchAll(ctx, urls)
		if err != nil {
			return nil, err
		}
		paths = append(paths, fetched...)
	}

	var polys []boundary.Polygon
	for _, path := range paths {
		parsed, err := parseBoundaryFile(path)
		if err != nil {
			return nil, err
		}
		polys = append(polys, parsed...)
	}
	return polys, nil
}

func parseBoundaryFile(path string) ([]boundary.Polygon, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return boundary.ParseGeoJSON(f, boundaryCategory)
	case ".shp":
		return boundary.ParseShapefile(path, boundaryCategory)
	default:
		return nil, eris.Errorf("unsupported boundary file %q (want .geojson, .json, or .shp)", path)
	}
}

func tempDir() string {
	if cfg.Boundaries.TempDir != "" {
		return cfg.Boundaries.TempDir
	}
	return filepath.Join(os.TempDir(), "vote-match-boundaries")
}

func init() {
	boundaryImportCmd.Flags().StringVar(&boundaryCategory, "category", "", "district category to import into")
	boundaryImportCmd.Flags().BoolVar(&boundaryClear, "clear", false, "remove the category's existing boundaries first")
	_ = boundaryImportCmd.MarkFlagRequired("category")
	boundaryCmd.AddCommand(boundaryImportCmd)
	rootCmd.AddCommand(boundaryCmd)
}
