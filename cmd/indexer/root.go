package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steemit/hivemind-indexer/pkg/config"
	"github.com/steemit/hivemind-indexer/pkg/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "hive-indexer",
	Short:         "Index Steem blocks into the hivemind database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logging.InitLogger(&cfg.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.GetLogger().Sync()
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, migrateCmd)
}
