package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kerryhatcher/vote-match/internal/report"
)

var (
	exportCategory     string
	exportMismatchOnly bool
	exportFormat       string
	exportOutput       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export comparison results to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if exportFormat != "csv" && exportFormat != "xlsx" {
			return eris.Errorf("unsupported format %q (want csv or xlsx)", exportFormat)
		}
		if exportFormat == "xlsx" && exportOutput == "" {
			return eris.New("--output is required for xlsx")
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		q := report.Query{Category: exportCategory, Limit: -1}
		if exportMismatchOnly {
			mismatch := true
			q.Mismatch = &mismatch
		}

		assignments, err := report.NewStore(pool).Assignments(ctx, q)
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return eris.Wrapf(err, "create %s", exportOutput)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		switch exportFormat {
		case "csv":
			err = report.WriteCSV(out, assignments)
		case "xlsx":
			err = report.WriteXLSX(out, assignments)
		}
		if err != nil {
			return err
		}

		if exportOutput != "" {
			fmt.Printf("Wrote %d assignment(s) to %s\n", len(assignments), exportOutput)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCategory, "category", "", "restrict to one category")
	exportCmd.Flags().BoolVar(&exportMismatchOnly, "mismatch-only", false, "export only mismatched voters")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout for csv)")
	rootCmd.AddCommand(exportCmd)
}
