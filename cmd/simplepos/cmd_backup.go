package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/simplepos/shell/config"
	"github.com/simplepos/shell/internal/profile"
	"github.com/simplepos/shell/pkg/backup"
	"github.com/simplepos/shell/pkg/database"
	"github.com/simplepos/shell/pkg/storage"
)

var backupFlags struct {
	encrypt  bool
	password string
	disk     string
	list     bool
	dest     string
}

// simplepos backup
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the database onto a storage disk",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		if err := storage.Connect(ctx); err != nil {
			return err
		}

		if backupFlags.list {
			disk, err := diskNamed(backupFlags.disk)
			if err != nil {
				return err
			}
			files, err := backup.List(ctx, disk)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "PATH\tSIZE\tCREATED")
			for _, f := range files {
				fmt.Fprintf(w, "%s\t%d\t%s\n", f.Path, f.Size, f.Modified.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		}

		url := profile.DatabaseURL(config.AppProfile())
		if _, err := database.Connect(url); err != nil {
			return err
		}
		defer func() { err = errors.Join(err, database.CloseAll()) }()

		res, err := backup.Run(ctx, url, backup.Args{
			Encrypt:  backupFlags.encrypt,
			Password: backupFlags.password,
			Disk:     backupFlags.disk,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅  %s (%d bytes)\n", res.Path, res.Size)
		return nil
	},
}

// simplepos backup:restore <path>
var backupRestoreCmd = &cobra.Command{
	Use:   "backup:restore <path>",
	Short: "Restore a snapshot over the database file (stop the app first)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := storage.Connect(ctx); err != nil {
			return err
		}
		disk, err := diskNamed(backupFlags.disk)
		if err != nil {
			return err
		}

		dest := backupFlags.dest
		if dest == "" {
			dest = database.Path(profile.DatabaseURL(config.AppProfile()))
		}
		password := backupFlags.password
		if password == "" {
			password = config.BackupPassword()
		}
		if err := backup.Restore(ctx, disk, args[0], password, dest); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅  restored %s → %s\n", args[0], dest)
		return nil
	},
}

func diskNamed(name string) (storage.Disk, error) {
	if name == "" {
		return storage.Default()
	}
	return storage.Use(name)
}

func init() {
	f := backupCmd.Flags()
	f.BoolVar(&backupFlags.encrypt, "encrypt", false, "seal the snapshot with a password")
	f.StringVar(&backupFlags.password, "password", "", "password (default BACKUP_PASSWORD)")
	f.StringVar(&backupFlags.disk, "disk", "", "storage disk (default STORAGE_DISK)")
	f.BoolVar(&backupFlags.list, "list", false, "list stored snapshots instead")

	r := backupRestoreCmd.Flags()
	r.StringVar(&backupFlags.password, "password", "", "password for .enc snapshots (default BACKUP_PASSWORD)")
	r.StringVar(&backupFlags.disk, "disk", "", "storage disk (default STORAGE_DISK)")
	r.StringVar(&backupFlags.dest, "dest", "", "database file to write (default the profile's database)")
}
