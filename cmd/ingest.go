package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kerryhatcher/vote-match/internal/ingest"
	"github.com/kerryhatcher/vote-match/internal/runlog"
	"github.com/kerryhatcher/vote-match/internal/voter"
)

var ingestChunkSize int

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.csv> [more files...]",
	Short: "Load voter registration CSV files",
	Long: `Loads state voter-file CSV exports into the voters table. Re-ingesting a
file upserts by registration number, so refreshed rolls replace prior rows.
District identifiers are kept as raw strings to preserve leading zeros.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		run, err := journal.Start(ctx, runlog.KindIngest, map[string]any{"files": args})
		if err != nil {
			return err
		}

		ingester := ingest.NewIngester(voter.NewStore(pool), ingestChunkSize)

		var total ingest.Stats
		var runErr error
		for _, path := range args {
			stats, err := ingester.IngestFile(ctx, path)
			total.Rows += stats.Rows
			total.Upserted += stats.Upserted
			total.Skipped += stats.Skipped
			if err != nil {
				runErr = err
				break
			}
			zap.L().Info("file loaded", zap.String("file", path), zap.Int("rows", stats.Rows))
		}

		finishRun(ctx, journal, run.ID, total, runErr)
		if runErr != nil {
			return runErr
		}

		fmt.Printf("Ingested %d rows (%d upserted, %d skipped) from %d file(s)\n",
			total.Rows, total.Upserted, total.Skipped, len(args))
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 1000, "rows per upsert transaction")
	rootCmd.AddCommand(ingestCmd)
}
