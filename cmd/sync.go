package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kerryhatcher/vote-match/internal/pipeline"
	"github.com/kerryhatcher/vote-match/internal/runlog"
	"github.com/kerryhatcher/vote-match/internal/voter"
)

var (
	syncForce bool
	syncLimit int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Write each voter's best geocode result back to the voter row",
	Long: `Picks the best attempt per voter across all providers (highest quality,
newest on ties) and writes its coordinate to the voter row. Voters whose best
attempt was a miss get their coordinate cleared. Already-resolved voters are
skipped unless --force is set.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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

		opts := pipeline.SyncOptions{Force: syncForce, Limit: syncLimit}
		run, err := journal.Start(ctx, runlog.KindSync, opts)
		if err != nil {
			return err
		}

		reconciler := pipeline.NewReconciler(voter.NewStore(pool), pipeline.NewAttemptStore(pool), 0)
		updated, runErr := reconciler.Sync(ctx, opts)
		finishRun(ctx, journal, run.ID, map[string]int64{"updated": updated}, runErr)
		if runErr != nil {
			return runErr
		}

		fmt.Printf("Updated %d voter coordinate(s)\n", updated)
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "re-resolve voters that already have a coordinate")
	syncCmd.Flags().IntVar(&syncLimit, "limit", -1, "max voters to sync; -1 means all")
	rootCmd.AddCommand(syncCmd)
}
