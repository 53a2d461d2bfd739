package cmd

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/segmenter/internal/core/config"
	"github.com/solatis/segmenter/internal/core/db"
)

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "Manage the stored customer population",
}

var customersImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import customers from a JSON array of {id, attributes} records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open customers: %w", err)
		}
		defer f.Close()
		customers, err := db.LoadCustomers(f)
		if err != nil {
			return err
		}

		store, closeDB, err := openCustomerStore(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		for i := range customers {
			if err := store.Insert(cmd.Context(), &customers[i]); err != nil {
				return fmt.Errorf("customer %d: %w", i, err)
			}
		}
		logger.Info("customers imported", "count", len(customers))
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d customer(s)\n", len(customers))
		return nil
	},
}

var customersCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored customers",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openCustomerStore(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		n, err := store.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(customersCmd)
	customersCmd.AddCommand(customersImportCmd)
	customersCmd.AddCommand(customersCountCmd)
}

// openCustomerStore opens and migrates the configured database.
func openCustomerStore(cmd *cobra.Command) (*db.CustomerStore, func(), error) {
	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	database, err := db.Open(cmd.Context(), cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*db.CustomerStore, func(), error) {
		database.Close()
		return nil, nil, err
	}
	if _, err := db.MigrateUp(cmd.Context(), database); err != nil {
		return fail(err)
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		return fail(err)
	}
	return db.NewCustomerStore(queries), closer(database), nil
}

func closer(database *sqlx.DB) func() {
	return func() {
		if err := database.Close(); err != nil {
			logger.Warn("close database", "error", err)
		}
	}
}
