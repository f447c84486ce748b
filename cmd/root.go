package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kerryhatcher/vote-match/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "vote-match",
	Short: "Voter address geocoding and district mismatch detection",
	Long: `Loads voter registration rolls, resolves residence addresses to coordinates
through cascading geocoding providers, imports official district boundaries,
and reports voters whose registered district disagrees with where they live.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
