package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mediavault/link-engine/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE:  runMigrate,
	}
	cmd.Flags().String("path", "", "migrations directory (default ./migrations)")
	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		path = os.Getenv("MIGRATIONS_PATH")
	}
	if path == "" {
		path = "./migrations"
	}

	db, err := storage.New(cfg.Database.DatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(path); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	fmt.Println("Migrations applied")
	return nil
}
