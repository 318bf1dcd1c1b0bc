package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", "", "First day to export, YYYY-MM-DD (required)")
	cmd.Flags().String("end", "", "Day after the last day to export, YYYY-MM-DD (default: start + 1 day)")
	cmd.MarkFlagRequired("start")
}

// dateRange reads --start and --end as the half-open day range [start, end).
func dateRange(cmd *cobra.Command) (time.Time, time.Time, error) {
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")

	start, err := time.Parse(dateLayout, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start %q: %w", startStr, err)
	}
	if endStr == "" {
		return start, start.AddDate(0, 0, 1), nil
	}
	end, err := time.Parse(dateLayout, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --end %q: %w", endStr, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end %s must be after --start %s", endStr, startStr)
	}
	return start, end, nil
}
