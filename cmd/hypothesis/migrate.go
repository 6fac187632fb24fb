package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/biocortex/hypothesis/config"
	"github.com/biocortex/hypothesis/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig(configPath)
		if !cfg.Storage.Enabled {
			return fmt.Errorf("storage is disabled in configuration")
		}
		dsn, err := cfg.Storage.Postgres.DSN()
		if err != nil {
			return err
		}
		if err := store.Migrate(dsn); err != nil {
			return err
		}
		fmt.Println("migrations applied")
		return nil
	},
}
