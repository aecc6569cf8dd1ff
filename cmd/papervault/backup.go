package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DeuxFois/papervault/internal/backup"
	"github.com/DeuxFois/papervault/internal/vault"
)

func newBackupCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot and restore the settings document",
	}
	cmd.AddCommand(newBackupListCmd(root), newBackupSnapshotCmd(root), newBackupRestoreCmd(root))
	return cmd
}

func (a *app) restorer() *backup.Restorer {
	return &backup.Restorer{
		Vault:     a.vault,
		BackupDir: vault.Clean(a.cfg.BackupDir),
		Target:    a.settings.Path(),
		Logger:    a.logger,
	}
}

func newBackupListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List settings backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			r := a.restorer()
			backups, err := r.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(backups) == 0 {
				printHeader(out, "No backups in %s", r.BackupDir)
				return nil
			}
			t := newTable(out, "Name", "Size", "Modified")
			for _, b := range backups {
				t.row(b.Name, fmt.Sprintf("%d B", b.Size), mutedStyle.Render(b.ModTime.Local().Format("2006-01-02 15:04")))
			}
			return t.flush()
		},
	}
}

func newBackupSnapshotCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Copy the current settings into the backup folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.restorer().Snapshot()
			if err != nil {
				return err
			}
			printDone(cmd.OutOrStdout(), "saved %s", b.Path)
			return nil
		},
	}
}

func newBackupRestoreCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <name>",
		Short: "Replace the settings with a backup",
		Long: `Validate a backup and copy it over the settings file. The previous
settings are kept next to it with a .bak suffix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			r := a.restorer()
			if err := r.Restore(args[0]); err != nil {
				return err
			}
			printDone(cmd.OutOrStdout(), "restored %s over %s", args[0], r.Target)
			return nil
		},
	}
}
