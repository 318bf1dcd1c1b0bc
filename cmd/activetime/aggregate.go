package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/V4T54L/activetime/internal/usecase"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run one aggregation pass and write day durations",
	Long: `Replays raw events from the spool, keeps the events of active subjects,
merges their sessions and writes active minutes per subject and calendar day
to every configured sink. With --source stream the
pending entries of the ingest stream are first moved into the spool and
acknowledged, so the pass covers everything collected so far.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		defer a.push(cmd.Context(), "aggregate")

		res, err := a.aggregate(cmd.Context())
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	addAggregateFlags(aggregateCmd)
	aggregateCmd.Flags().String("source", "", "Event source: spool or stream (overrides EVENT_SOURCE)")
}

func addAggregateFlags(cmd *cobra.Command) {
	cmd.Flags().String("cohort-source", "", "Cohort source: file or redis (overrides COHORT_SOURCE)")
	cmd.Flags().String("cohort-file", "", "Cohort CSV path (overrides COHORT_FILE)")
	cmd.Flags().String("output", "", "Report CSV path (overrides OUTPUT_FILE)")
	cmd.Flags().String("spool-dir", "", "Spool directory (overrides SPOOL_DIR)")
}

func printResult(w io.Writer, res usecase.PassResult) {
	fmt.Fprintf(w, "run %s: %d lines, %d admitted, %d malformed, %d rejected, %d sessions (%d discarded), %d rows\n",
		res.RunID, res.Lines, res.Admitted, res.Malformed, res.Rejected, res.Sessions, res.Discarded, res.Rows)
}
