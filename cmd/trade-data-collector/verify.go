package main

import (
	"fmt"

	"github.com/blueogin/trade-data-collector/internal/sink"
	"github.com/spf13/cobra"
)

var (
	flagVerifyOutput string
	flagVerifyRows   int
)

func init() {
	verifyCmd.Flags().StringVarP(&flagVerifyOutput, "output", "o", "", "CSV file to check (defaults to collector.output)")
	verifyCmd.Flags().IntVar(&flagVerifyRows, "rows", 0, "Expected number of data rows")
	_ = verifyCmd.MarkFlagRequired("rows")
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the header and data row count of a CSV output",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flagVerifyOutput
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Collector.Output
		}
		return verifyOutput(cmd, path, flagVerifyRows)
	},
}

func verifyOutput(cmd *cobra.Command, path string, rows int) error {
	if sink.Verify(path, rows) {
		fmt.Fprintf(cmd.OutOrStdout(), "verify: %s has %d row(s)\n", path, rows)
		return nil
	}
	n, err := sink.CountRows(path)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	return fmt.Errorf("verify %s: expected %d row(s), found %d", path, rows, n)
}
