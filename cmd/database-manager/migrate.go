package main

import (
	"github.com/spf13/cobra"

	"github.com/edvin/dbmanager/internal/db"
	"github.com/edvin/dbmanager/internal/logging"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run journal database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("migrate")
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg)

			logger.Info().Msg("running journal database migrations")
			if err := db.RunMigrations(cfg.JournalDatabaseURL); err != nil {
				return err
			}
			logger.Info().Msg("migrations complete")
			return nil
		},
	}
}
