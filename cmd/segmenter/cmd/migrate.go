package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/segmenter/internal/core/config"
	"github.com/solatis/segmenter/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration management",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		database, err := db.Open(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return err
		}
		defer database.Close()

		n, err := db.MigrateUp(cmd.Context(), database)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		database, err := db.Open(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return err
		}
		defer database.Close()

		statuses, err := db.MigrateStatus(cmd.Context(), database)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, s := range statuses {
			switch {
			case s.Applied && s.AppliedAt != nil:
				fmt.Fprintf(out, "%-40s applied %s (%dms)\n", s.ID, s.AppliedAt.Format("2006-01-02 15:04:05"), s.ExecutionMs)
			case s.Applied:
				fmt.Fprintf(out, "%-40s applied\n", s.ID)
			default:
				fmt.Fprintf(out, "%-40s pending\n", s.ID)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
