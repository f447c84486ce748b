package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kerryhatcher/vote-match/internal/runlog"
)

var (
	runsKind   string
	runsStatus string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List journaled pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

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

		runs, err := journal.List(ctx, runlog.Filter{Kind: runsKind, Status: runsStatus, Limit: runsLimit})
		if err != nil {
			return err
		}

		fmt.Printf("%-36s %-16s %-10s %-20s %s\n", "ID", "KIND", "STATUS", "STARTED", "DURATION")
		for _, r := range runs {
			duration := "-"
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			fmt.Printf("%-36s %-16s %-10s %-20s %s\n",
				r.ID, r.Kind, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"), duration)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsKind, "kind", "", "filter by run kind")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "max runs to show")
	rootCmd.AddCommand(runsCmd)
}
