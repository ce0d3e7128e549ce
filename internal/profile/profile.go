// Package profile assembles the two application builds: the current
// point-of-sale app ("native") and the older bistro build.
package profile

import (
	"context"
	"fmt"

	"github.com/simplepos/shell/config"
	"github.com/simplepos/shell/database/migrations"
	"github.com/simplepos/shell/pkg/app"
	"github.com/simplepos/shell/pkg/auth"
	"github.com/simplepos/shell/pkg/backup"
	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/plugins/logplugin"
	"github.com/simplepos/shell/pkg/plugins/process"
	"github.com/simplepos/shell/pkg/plugins/shell"
	"github.com/simplepos/shell/pkg/plugins/sqlplugin"
	"github.com/simplepos/shell/pkg/plugins/updater"
	"github.com/simplepos/shell/pkg/printer"
	"github.com/simplepos/shell/pkg/storage"
)

// Version is stamped at build time:
//
//	go build -ldflags "-X github.com/simplepos/shell/internal/profile.Version=1.4.0"
var Version = "0.1.0"

const (
	Native = "native"
	Bistro = "bistro"
)

// New returns the application for the named profile.
func New(name string) (*app.Application, error) {
	switch name {
	case Native:
		return NewNative(), nil
	case Bistro:
		return NewBistro(), nil
	}
	return nil, fmt.Errorf("profile: unknown profile %q", name)
}

// Current returns the application selected by APP_PROFILE.
func Current() (*app.Application, error) {
	return New(config.AppProfile())
}

// DatabaseURL is the database the profile migrates. DATABASE_URL overrides
// it for the active profile only.
func DatabaseURL(name string) string {
	if config.AppProfile() == name {
		return config.DatabaseURL()
	}
	if name == Bistro {
		return migrations.BistroDatabase
	}
	return migrations.NativeDatabase
}

// NewNative builds the point-of-sale app: every plugin, the raw printer
// commands, PIN hashing and database backups.
func NewNative() *app.Application {
	db := DatabaseURL(Native)
	p := printer.New(config.PrinterConnectTimeout())

	return app.New("simple-pos").
		Plugin(logplugin.New()).
		Plugin(sqlplugin.New().AddMigrations(db, migrations.Native())).
		Plugin(shell.New()).
		Plugin(updater.New(Version)).
		Plugin(process.New()).
		Command("print_raw", p.RawCommand()).
		Command("print_test", p.TestCommand()).
		Command("backup_database", backup.Command(db)).
		Command("hash_pin", auth.HashPinCommand()).
		Command("verify_pin", auth.VerifyPinCommand()).
		Setup(connectStorage).
		Setup(scheduleBackups(db))
}

// NewBistro builds the bistro app, which only needs SQL and the shell.
func NewBistro() *app.Application {
	return app.New("bistro").
		Plugin(sqlplugin.New().AddMigrations(DatabaseURL(Bistro), migrations.Bistro())).
		Plugin(shell.New())
}

func connectStorage(ctx context.Context, _ *app.Host) error {
	return storage.Connect(ctx)
}

func scheduleBackups(db string) app.SetupFunc {
	return func(_ context.Context, host *app.Host) error {
		every := config.BackupInterval()
		if every <= 0 {
			return nil
		}
		host.Scheduler.Every(every).
			Name("backup").
			WithoutOverlapping().
			Run(backup.Job(db, config.BackupKeep()))
		logger.Info("backup: scheduled", "every", every.String(), "keep", config.BackupKeep())
		return nil
	}
}
