package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kerryhatcher/vote-match/internal/boundary"
	"github.com/kerryhatcher/vote-match/internal/report"
	"github.com/kerryhatcher/vote-match/internal/voter"
	"github.com/kerryhatcher/vote-match/pkg/geocode"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress: voters, geocode quality, boundaries, verdicts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		counts, err := voter.NewStore(pool).CountsByStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Voters: %d total, %d with coordinates\n", counts.TotalVoters, counts.WithCoordinates)

		if len(counts.BestQuality) > 0 {
			fmt.Println("Best geocode quality per voter:")
			qualities := make([]geocode.Quality, 0, len(counts.BestQuality))
			for q := range counts.BestQuality {
				qualities = append(qualities, q)
			}
			sort.Slice(qualities, func(i, j int) bool { return qualities[i].Rank() > qualities[j].Rank() })
			for _, q := range qualities {
				fmt.Printf("  %-12s %d\n", q, counts.BestQuality[q])
			}
		}

		boundaries, err := boundary.NewStore(pool).Counts(ctx)
		if err != nil {
			return err
		}
		if len(boundaries) > 0 {
			fmt.Println("Boundaries:")
			keys := make([]string, 0, len(boundaries))
			for k := range boundaries {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %-24s %d\n", k, boundaries[k])
			}
		}

		summaries, err := report.NewStore(pool).Summaries(ctx)
		if err != nil {
			return err
		}
		if len(summaries) > 0 {
			fmt.Println("Comparison verdicts:")
			for _, s := range summaries {
				fmt.Printf("  %-24s total %-8d matched %-8d mismatched %-8d unresolved %d\n",
					s.Category, s.Total, s.Matched, s.Mismatched, s.Unresolved)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
