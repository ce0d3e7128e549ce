package backup

import (
	"context"
	"time"

	"github.com/simplepos/shell/config"
	"github.com/simplepos/shell/pkg/database"
	"github.com/simplepos/shell/pkg/ipc"
	"github.com/simplepos/shell/pkg/storage"
)

// Args are the backup_database arguments. An empty password falls back to
// BACKUP_PASSWORD; an empty disk to the default disk.
type Args struct {
	Encrypt  bool   `json:"encrypt"`
	Password string `json:"password"`
	Disk     string `json:"disk"`
}

// Command returns the backup_database handler for the database at url.
func Command(url string) ipc.Handler {
	return ipc.Typed(func(ctx context.Context, a Args) (any, error) {
		return Run(ctx, url, a)
	})
}

// Run backs up the loaded database at url.
func Run(ctx context.Context, url string, a Args) (Result, error) {
	db, err := database.Get(url)
	if err != nil {
		return Result{}, err
	}
	disk, err := resolveDisk(a.Disk)
	if err != nil {
		return Result{}, err
	}
	password := a.Password
	if password == "" {
		password = config.BackupPassword()
	}
	return Create(ctx, db, Options{Encrypt: a.Encrypt, Password: password, Disk: disk})
}

// Job returns a scheduled task that backs up url and keeps the newest keep
// snapshots. Snapshots are encrypted when BACKUP_PASSWORD is set.
func Job(url string, keep int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		password := config.BackupPassword()
		if _, err := Run(ctx, url, Args{Encrypt: password != "", Password: password}); err != nil {
			return err
		}
		disk, err := resolveDisk("")
		if err != nil {
			return err
		}
		_, err = Prune(ctx, disk, keep)
		return err
	}
}

func resolveDisk(name string) (storage.Disk, error) {
	if name == "" {
		return storage.Default()
	}
	return storage.Use(name)
}
