package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long:  "Apply the jobs and applications schema, including the pgvector extension and its ivfflat index. Safe to run repeatedly.",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	database, err := a.openDB(cmd.Context())
	if err != nil {
		return err
	}
	if err := database.Migrate(cmd.Context()); err != nil {
		return err
	}
	a.logger.Info("schema is up to date")
	return nil
}
