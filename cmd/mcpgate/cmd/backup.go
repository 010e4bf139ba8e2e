package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpgate/mcpgate/internal/adapter/outbound/backup"
	"github.com/mcpgate/mcpgate/internal/adapter/outbound/settings"
	"github.com/mcpgate/mcpgate/internal/config"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage settings backups",
	Long: `Create, list, or restore settings backups.

Backups are named by creation time and a content-hash prefix, so two
backups of identical settings content carry the same hash. The newest
backups are retained up to the configured cap; older ones are swept.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the current settings file",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := backupManagerFromConfig()
		if err != nil {
			return err
		}
		rec, err := mgr.Create()
		if err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		if rec == nil {
			fmt.Println("no settings file to back up")
			return nil
		}
		fmt.Printf("created %s (%d bytes, hash %s)\n", rec.Location, rec.Size, rec.ContentHash)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := backupManagerFromConfig()
		if err != nil {
			return err
		}
		records, err := mgr.List()
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("no backups")
			return nil
		}
		for _, rec := range records {
			fmt.Printf("%s  %s  %d bytes\n",
				rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Location, rec.Size)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Restore the settings file from a backup",
	Long: `Restore the settings file from the named backup.

The current settings are snapshotted first, so a restore can itself be
undone by restoring that snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := backupManagerFromConfig()
		if err != nil {
			return err
		}
		if err := mgr.Restore(args[0]); err != nil {
			return fmt.Errorf("failed to restore: %w", err)
		}
		fmt.Printf("settings restored from %s\n", args[0])
		return nil
	},
}

func backupManagerFromConfig() (*backup.Manager, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Server.LogLevel)
	store := settings.NewFileStore(cfg.Settings.Path, logger)
	return backup.NewManager(store, cfg.Backup.Dir, cfg.Backup.Retention, logger), nil
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}
