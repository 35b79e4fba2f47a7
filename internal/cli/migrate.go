package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"bollette/internal/storage"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadAndValidateConfig(configPath)
		if err != nil {
			return err
		}
		logger := SetupLogger(cfg.LogLevel)

		if err := os.MkdirAll(filepath.Dir(cfg.SQLiteDBPath), 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
		if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
			return err
		}
		logger.Info("Migrations applied", "path", cfg.SQLiteDBPath)
		return nil
	},
}
