package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/V4T54L/activetime/internal/adapter/csvfile"
	redisrepo "github.com/V4T54L/activetime/internal/adapter/repository/redis"
)

var cohortCmd = &cobra.Command{
	Use:   "cohort",
	Short: "Manage the active-subject cohort",
}

var cohortImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the Redis cohort set with the identifiers of a CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		ids, err := csvfile.NewCohortFile(a.cfg.CohortFile, a.logger).ReadIDs()
		if err != nil {
			return err
		}
		client, err := a.redisClient(cmd.Context())
		if err != nil {
			return err
		}
		repo := redisrepo.NewCohortRepository(client, a.cfg.RedisCohortKey, a.logger)
		if err := repo.ReplaceSubjects(cmd.Context(), ids); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d identifiers into %s\n", len(ids), a.cfg.RedisCohortKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cohortCmd)
	cohortCmd.AddCommand(cohortImportCmd)
	cohortImportCmd.Flags().String("cohort-file", "", "Cohort CSV path (overrides COHORT_FILE)")
}
