package app

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/simplepos/shell/database/seeders"
	"github.com/simplepos/shell/pkg/database"
	"github.com/simplepos/shell/pkg/migration"
)

type migrationSet struct {
	url string
	set []migration.Migration
}

// migrationSets collects the databases owned by Migrator plugins, sorted by
// url.
func (a *Application) migrationSets() []migrationSet {
	var out []migrationSet
	for _, p := range a.plugins {
		m, ok := p.(Migrator)
		if !ok {
			continue
		}
		for url, set := range m.Migrations() {
			out = append(out, migrationSet{url: url, set: set})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].url < out[j].url })
	return out
}

func (a *Application) runner(s migrationSet) (*migration.Runner, error) {
	db, err := database.Connect(s.url)
	if err != nil {
		return nil, err
	}
	r := migration.New(db, s.url, s.set)
	r.Progress = a.out
	return r, nil
}

// cmdMigrate runs all pending migrations.
func (a *Application) cmdMigrate(ctx context.Context) error {
	defer database.CloseAll() //nolint:errcheck
	sets := a.migrationSets()
	if len(sets) == 0 {
		fmt.Fprintln(a.out, "No databases registered.")
		return nil
	}
	for _, s := range sets {
		fmt.Fprintf(a.out, "%s\n", s.url)
		r, err := a.runner(s)
		if err != nil {
			return err
		}
		if err := r.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// cmdMigrateRollback reverses the last migration batch of every database.
func (a *Application) cmdMigrateRollback(ctx context.Context) error {
	defer database.CloseAll() //nolint:errcheck
	for _, s := range a.migrationSets() {
		fmt.Fprintf(a.out, "%s\n", s.url)
		r, err := a.runner(s)
		if err != nil {
			return err
		}
		if err := r.Rollback(ctx); err != nil {
			return err
		}
	}
	return nil
}

// cmdMigrateStatus prints migration status.
func (a *Application) cmdMigrateStatus(ctx context.Context) error {
	defer database.CloseAll() //nolint:errcheck
	for _, s := range a.migrationSets() {
		r, err := a.runner(s)
		if err != nil {
			return err
		}
		if err := r.EnsureTable(); err != nil {
			return err
		}
		rows, err := r.Status(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(a.out, "%s\n", s.url)
		w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "VERSION\tDESCRIPTION\tSTATUS\tBATCH\tAPPLIED AT")
		for _, row := range rows {
			status, batch, at := "pending", "", ""
			if row.Applied {
				status = "applied"
				batch = fmt.Sprint(row.Batch)
				at = row.AppliedAt.Local().Format("2006-01-02 15:04:05")
			}
			if row.Unknown {
				status = "unknown"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", row.Version, row.Description, status, batch, at)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// cmdSeed migrates and seeds every database.
func (a *Application) cmdSeed(ctx context.Context) error {
	defer database.CloseAll() //nolint:errcheck
	for _, s := range a.migrationSets() {
		r, err := a.runner(s)
		if err != nil {
			return err
		}
		if err := r.Run(ctx); err != nil {
			return err
		}
		db, err := database.Get(s.url)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s\n", s.url)
		if err := seeders.RunAll(ctx, db, a.out); err != nil {
			return err
		}
	}
	return nil
}

// cmdCommands prints every bridge command.
func (a *Application) cmdCommands() error {
	for _, name := range a.CommandNames() {
		fmt.Fprintln(a.out, name)
	}
	return nil
}

// cmdRouteList prints the bridge routes without booting plugins.
func (a *Application) cmdRouteList() error {
	rt := a.newRuntime(context.Background())
	defer rt.Close() //nolint:errcheck

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "METHOD\tPATH\tNAME")
	fmt.Fprintln(w, "------\t----\t----")
	for _, ri := range rt.Router().Routes() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", ri.Method, ri.Path, ri.Name)
	}
	return w.Flush()
}
