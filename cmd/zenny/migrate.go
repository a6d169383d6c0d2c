package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/cli"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on startup too; this one is useful for checking
the schema of a database without touching it.`,
		RunE: runMigrate,
	}
	cmd.Flags().Bool("status", false, "show the schema version without applying changes")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if status {
		content := fmt.Sprintf("Database: %s\n", cfg.Database.Path) +
			fmt.Sprintf("Current:  %d\n", current) +
			fmt.Sprintf("Latest:   %d", storage.ExpectedSchemaVersion)
		fmt.Println(cli.RenderBox(cli.ChartIcon+" Migration status", content))
		return nil
	}

	slog.Info("Running database migrations", "database", cfg.Database.Path, "from_version", current)
	if err := migrateWithBackup(ctx, store, cfg.Database.Path); err != nil {
		return err
	}
	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Database schema is at version %d", storage.ExpectedSchemaVersion)))
	return nil
}
