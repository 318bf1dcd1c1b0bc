package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "activetime",
	Short: "Compute daily active minutes from raw product events",
	Long: `activetime downloads raw event exports into a local spool (or drains the
ingest stream), folds events into sessions and writes one row of active
minutes per subject and calendar day to CSV and, when configured, Postgres.

Configuration comes from the environment (and a .env file); flags override it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
}
