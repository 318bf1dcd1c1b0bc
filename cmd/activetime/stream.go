package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Inspect the raw event stream fed by the ingest service",
}

var streamStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print stream length and consumer group backlog as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		stream, err := a.eventStream(cmd.Context())
		if err != nil {
			return err
		}
		status, err := stream.StreamStatus(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	rootCmd.AddCommand(streamCmd)
	streamCmd.AddCommand(streamStatusCmd)
}
