package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kerryhatcher/vote-match/internal/compare"
	"github.com/kerryhatcher/vote-match/internal/runlog"
	"github.com/kerryhatcher/vote-match/internal/voter"
)

var compareLimit int

var compareCmd = &cobra.Command{
	Use:   "compare [category ... | all]",
	Short: "Compare registered districts against spatially derived ones",
	Long: `For each category, finds the district whose boundary contains each
geocoded voter and compares it with the district on the voter's registration.
Categories run and commit independently; a category another run is holding is
skipped and reported, not retried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		categories, err := loadCategories()
		if err != nil {
			return err
		}
		selected, err := selectCategories(categories, args)
		if err != nil {
			return err
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

		keys := make([]string, len(selected))
		for i, c := range selected {
			keys[i] = c.Key
		}
		run, err := journal.Start(ctx, runlog.KindCompare, map[string]any{"categories": keys, "limit": compareLimit})
		if err != nil {
			return err
		}

		engine := compare.NewEngine(pool, cfg.Compare.ChunkSize)
		results := engine.Run(ctx, selected, compareLimit)
		finishRun(ctx, journal, run.ID, results, nil)

		var incomplete int
		for _, r := range results {
			if !r.Completed {
				incomplete++
				fmt.Printf("%-20s aborted: %v\n", r.Category, r.Err)
				continue
			}
			fmt.Printf("%-20s total %-7d matched %-7d mismatched %-7d unresolved %-7d no-registered %d\n",
				r.Category, r.Total, r.Matched, r.Mismatched, r.Unresolved, r.NoRegistered)
		}
		if incomplete > 0 {
			return eris.Errorf("%d of %d categories did not complete", incomplete, len(results))
		}
		return nil
	},
}

// selectCategories resolves positional args against the configured category
// set. No args (or "all") means every category.
func selectCategories(categories []voter.Category, args []string) ([]voter.Category, error) {
	if len(args) == 0 || (len(args) == 1 && strings.EqualFold(args[0], "all")) {
		return categories, nil
	}

	var out []voter.Category
	for _, key := range args {
		cat, ok := voter.FindCategory(categories, key)
		if !ok {
			return nil, eris.Errorf("unknown category %q", key)
		}
		out = append(out, cat)
	}
	return out, nil
}

func init() {
	compareCmd.Flags().IntVar(&compareLimit, "limit", -1, "max voters per category; -1 means all")
	rootCmd.AddCommand(compareCmd)
}
