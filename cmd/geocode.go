package main

import (
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kerryhatcher/vote-match/internal/pipeline"
	"github.com/kerryhatcher/vote-match/internal/runlog"
	"github.com/kerryhatcher/vote-match/internal/voter"
	"github.com/kerryhatcher/vote-match/pkg/geocode"
)

var (
	geocodeProvider    string
	geocodeLimit       int
	geocodeRetryFailed bool
	geocodeBatchSize   int
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocode voter addresses through one provider",
	Long: `Runs one provider pass. The default provider takes voters that have never
been attempted; any other provider picks up voters whose best attempt so far
was a miss or a failure. Use --retry-failed to also re-run this provider's
own failures.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		registry, err := buildRegistry()
		if err != nil {
			return err
		}

		journal, err := openJournal(ctx, pool)
		if err != nil {
			return err
		}
		defer journal.Close() //nolint:errcheck

		providerName := geocodeProvider
		if providerName == "" {
			providerName = cfg.Geocode.DefaultProvider
		}

		opts := pipeline.RunOptions{
			Provider:    providerName,
			Limit:       geocodeLimit,
			RetryFailed: geocodeRetryFailed,
			BatchSize:   geocodeBatchSize,
		}

		run, err := journal.Start(ctx, runlog.KindGeocode, opts)
		if err != nil {
			return err
		}

		orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
			Voters:          voter.NewStore(pool),
			Attempts:        pipeline.NewAttemptStore(pool),
			Registry:        registry,
			DefaultProvider: cfg.Geocode.DefaultProvider,
			DefaultState:    cfg.Geocode.DefaultState,
		})

		result, runErr := orch.Run(ctx, opts)
		finishRun(ctx, journal, run.ID, result, runErr)
		if runErr != nil {
			return runErr
		}

		printRunResult(result)
		return nil
	},
}

func printRunResult(r *pipeline.RunResult) {
	fmt.Printf("Provider %s: selected %d, persisted %d attempts\n", r.Provider, r.Selected, r.Persisted)

	qualities := make([]geocode.Quality, 0, len(r.Counts))
	for q := range r.Counts {
		qualities = append(qualities, q)
	}
	sort.Slice(qualities, func(i, j int) bool { return qualities[i].Rank() > qualities[j].Rank() })
	for _, q := range qualities {
		fmt.Printf("  %-12s %d\n", q, r.Counts[q])
	}

	if len(r.ChunkFailures) > 0 {
		fmt.Printf("  %d chunk(s) failed and were marked for retry:\n", len(r.ChunkFailures))
		for _, cf := range r.ChunkFailures {
			fmt.Printf("    chunk %d (%d voters): %s\n", cf.Index, cf.Voters, cf.Reason)
		}
	}
}

var (
	deleteProvider string
	deleteQuality  string
	deleteAll      bool
)

var geocodeDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete stored geocode attempts",
	Long: `Removes geocode attempts so a provider can re-run them from scratch.
Filter by provider, by quality, or both; deleting everything requires --all.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if deleteProvider == "" && deleteQuality == "" && !deleteAll {
			return eris.New("specify at least one of --provider, --quality, or --all")
		}

		quality := geocode.Quality(strings.ToUpper(deleteQuality))
		if deleteQuality != "" && quality.Rank() == 0 {
			return eris.Errorf("unknown quality %q (valid: EXACT, INTERPOLATED, APPROXIMATE, NO_MATCH, FAILED)", deleteQuality)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		deleted, err := pipeline.NewAttemptStore(pool).DeleteAttempts(ctx, deleteProvider, quality)
		if err != nil {
			return err
		}

		fmt.Printf("Deleted %d geocode attempt(s)\n", deleted)
		return nil
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured geocoding providers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		registry, err := buildRegistry()
		if err != nil {
			return err
		}

		fmt.Printf("%-10s %-11s %-9s %-11s %s\n", "NAME", "TYPE", "KEY", "DELAY", "BATCH")
		for _, name := range registry.Names() {
			p, err := registry.Get(name)
			if err != nil {
				return err
			}
			key := "no"
			if p.RequiresKey() {
				key = "required"
			}
			marker := ""
			if name == cfg.Geocode.DefaultProvider {
				marker = "  (default)"
			}
			fmt.Printf("%-10s %-11s %-9s %-11s %d%s\n",
				p.Name(), p.Type(), key, p.RateLimitDelay(), p.MaxBatchSize(), marker)
		}
		return nil
	},
}

func init() {
	geocodeCmd.Flags().StringVar(&geocodeProvider, "provider", "", "provider to run (default from config)")
	geocodeCmd.Flags().IntVar(&geocodeLimit, "limit", -1, "max voters to select; -1 means all")
	geocodeCmd.Flags().BoolVar(&geocodeRetryFailed, "retry-failed", false, "re-run this provider's failed attempts")
	geocodeCmd.Flags().IntVar(&geocodeBatchSize, "batch-size", 0, "cap the provider batch size")

	geocodeDeleteCmd.Flags().StringVar(&deleteProvider, "provider", "", "delete attempts from this provider only")
	geocodeDeleteCmd.Flags().StringVar(&deleteQuality, "quality", "", "delete attempts with this quality only (e.g. failed, no_match)")
	geocodeDeleteCmd.Flags().BoolVar(&deleteAll, "all", false, "delete every stored attempt")
	geocodeCmd.AddCommand(geocodeDeleteCmd)

	rootCmd.AddCommand(geocodeCmd)
	rootCmd.AddCommand(providersCmd)
}
