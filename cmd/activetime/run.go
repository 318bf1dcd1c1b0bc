package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/V4T54L/activetime/internal/pkg/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Export a day range and aggregate it in one batch",
	Long: `Empties the spool, downloads every day in [--start, --end), runs one
aggregation pass over the spool and writes the report. With --cleanup the
spool is emptied again once the report has been written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		defer a.push(cmd.Context(), "run")

		start, end, err := dateRange(cmd)
		if err != nil {
			return err
		}
		cleanup, _ := cmd.Flags().GetBool("cleanup")

		// A batch always aggregates what it just downloaded.
		a.cfg.EventSource = config.EventsFromSpool

		lines, err := a.export(cmd.Context(), start, end, true)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d event lines\n", lines)

		res, err := a.aggregate(cmd.Context())
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res)

		if cleanup {
			if err := a.spool.Truncate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to empty spool: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRangeFlags(runCmd)
	addAggregateFlags(runCmd)
	runCmd.Flags().Bool("cleanup", false, "Empty the spool after a successful run")
}
