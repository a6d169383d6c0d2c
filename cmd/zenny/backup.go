package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/cli"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/storage"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot and restore the database",
		Long: `Manage snapshots of the local database.

A snapshot is also taken automatically before a schema upgrade; the newest
five automatic snapshots are kept.`,
	}
	cmd.AddCommand(backupCreateCmd(), backupListCmd(), backupRestoreCmd(), backupDeleteCmd())
	return cmd
}

func backupCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Snapshot the database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			reason, _ := cmd.Flags().GetString("reason")
			b, err := store.CreateBackup(cmd.Context(), name, reason)
			if errors.Is(err, storage.ErrBackupExists) {
				return common.NewUserError(fmt.Sprintf("A backup named %q already exists", name), err)
			}
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created backup %s (%s)", b.ID, humanSize(b.Size))))
			return nil
		},
	}
	cmd.Flags().String("reason", "", "note stored with the backup")
	return cmd
}

func backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List database snapshots",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			backups, err := storage.ListBackups(cfg.Database.Path)
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				fmt.Println(cli.FormatInfo("No backups yet. Create one with `zenny backup create`."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, cli.TableHeader("NAME", "CREATED", "SCHEMA", "TRANSACTIONS", "SIZE", "NOTE"))
			for _, b := range backups {
				note := b.Reason
				if b.Auto {
					note = cli.SubtleStyle.Render("auto " + note)
				}
				fmt.Fprintf(w, "%s\t%s\tv%d\t%d\t%s\t%s\n",
					b.ID, b.CreatedAt.Local().Format("2006-01-02 15:04"), b.SchemaVersion,
					b.RowCounts["transactions"], humanSize(b.Size), note)
			}
			return w.Flush()
		},
	}
}

func backupRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <name>",
		Short: "Replace the database with a snapshot",
		Long: `Replace the database with a snapshot.

Stop any running "zenny serve" first; the database must not be open while it
is replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			switch err := storage.RestoreBackup(cfg.Database.Path, args[0]); {
			case errors.Is(err, storage.ErrBackupNotFound):
				return common.NewUserError(fmt.Sprintf("No backup named %q. See `zenny backup list`.", args[0]), err)
			case errors.Is(err, storage.ErrBackupCorrupted):
				return common.NewUserError(fmt.Sprintf("Backup %q failed its integrity check", args[0]), err)
			case err != nil:
				return err
			}
			fmt.Println(cli.FormatSuccess("Restored backup " + args[0]))
			return nil
		},
	}
}

func backupDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := storage.DeleteBackup(cfg.Database.Path, args[0]); err != nil {
				if errors.Is(err, storage.ErrBackupNotFound) {
					return common.NewUserError(fmt.Sprintf("No backup named %q", args[0]), err)
				}
				return err
			}
			fmt.Println(cli.FormatSuccess("Deleted backup " + args[0]))
			return nil
		},
	}
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
