package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/steemit/hivemind-indexer/internal/db"
	"github.com/steemit/hivemind-indexer/pkg/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.New(&cfg.Database, cfg.Logging.Level)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.Migrate(); err != nil {
			return err
		}

		version, err := database.SchemaVersion()
		if err != nil {
			return err
		}
		logging.GetLogger().Info("Schema up to date", zap.Int64("version", version))
		return nil
	},
}
