// Package sqlplugin gives the webview SQL access to the local SQLite
// databases and migrates them while the application boots.
//
// Commands (bridge names "plugin:sql|<command>"):
//
//	load    {db}                                   -> db
//	execute {db, query, values}                    -> {rowsAffected, lastInsertId}
//	select  {db, query, values}                    -> [{column: value}, ...]
//	batch   {db, statements: [{query, values}]}    -> [{rowsAffected, lastInsertId}, ...]
//	close   {db?}                                  -> true
//
// Queries use SQLite placeholders ($1, ?1, ?, :name). values bind in order.
package sqlplugin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/simplepos/shell/pkg/app"
	"github.com/simplepos/shell/pkg/database"
	"github.com/simplepos/shell/pkg/ipc"
	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/metrics"
	"github.com/simplepos/shell/pkg/migration"
)

// Name is the plugin name.
const Name = "sql"

var (
	ErrInvalidURL = errors.New("sql: database url must start with sqlite:")
	ErrNotLoaded  = errors.New("sql: database not loaded")
)

// Plugin owns the migration sets and the connections the webview loaded.
type Plugin struct {
	mu         sync.Mutex
	migrations map[string][]migration.Migration
	loaded     map[string]struct{}
}

// New returns a Plugin without migrations.
func New() *Plugin {
	return &Plugin{
		migrations: map[string][]migration.Migration{},
		loaded:     map[string]struct{}{},
	}
}

// AddMigrations registers set for the database at url. The database is
// opened and migrated during Init.
func (p *Plugin) AddMigrations(url string, set []migration.Migration) *Plugin {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.migrations[url] = append(p.migrations[url], set...)
	return p
}

func (p *Plugin) Name() string { return Name }

// Migrations implements app.Migrator.
func (p *Plugin) Migrations() map[string][]migration.Migration {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string][]migration.Migration, len(p.migrations))
	for url, set := range p.migrations {
		out[url] = append([]migration.Migration(nil), set...)
	}
	return out
}

// Init opens every database with migrations and brings its schema up to
// date. Any failure aborts startup.
func (p *Plugin) Init(ctx context.Context, _ *app.Host) error {
	urls := make([]string, 0, len(p.migrations))
	for url := range p.migrations {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	for _, url := range urls {
		if _, err := p.load(ctx, url); err != nil {
			return err
		}
	}
	return nil
}

// load connects url and runs its pending migrations.
func (p *Plugin) load(ctx context.Context, url string) (*gorm.DB, error) {
	if !strings.HasPrefix(url, "sqlite:") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}
	db, err := database.Connect(url)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	set := p.migrations[url]
	p.mu.Unlock()
	if len(set) > 0 {
		if err := migration.New(db, url, set).Run(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	p.loaded[url] = struct{}{}
	p.mu.Unlock()
	logger.Target("sql").Info("sql: database loaded", "db", url, "path", database.Path(url))
	return db, nil
}

func (p *Plugin) conn(url string) (*sql.DB, error) {
	p.mu.Lock()
	_, ok := p.loaded[url]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, url)
	}
	db, err := database.Get(url)
	if err != nil {
		return nil, err
	}
	return db.DB()
}

// Close closes the databases this plugin loaded.
func (p *Plugin) Close() error {
	p.mu.Lock()
	urls := make([]string, 0, len(p.loaded))
	for url := range p.loaded {
		urls = append(urls, url)
	}
	p.loaded = map[string]struct{}{}
	p.mu.Unlock()

	var errs []error
	for _, url := range urls {
		if err := database.Close(url); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ── Commands ─────────────────────────────────────────────────────────────────

type loadArgs struct {
	DB string `json:"db"`
}

type queryArgs struct {
	DB     string `json:"db"`
	Query  string `json:"query" validate:"required"`
	Values Values `json:"values"`
}

type batchArgs struct {
	DB         string      `json:"db"`
	Statements []statement `json:"statements" validate:"required,dive"`
}

type statement struct {
	Query  string `json:"query" validate:"required"`
	Values Values `json:"values"`
}

// ExecResult is the outcome of a write.
type ExecResult struct {
	RowsAffected int64 `json:"rowsAffected"`
	LastInsertID int64 `json:"lastInsertId"`
}

func (p *Plugin) Commands() map[string]ipc.Handler {
	return map[string]ipc.Handler{
		"load":    ipc.Typed(p.cmdLoad),
		"execute": ipc.Typed(p.cmdExecute),
		"select":  ipc.Typed(p.cmdSelect),
		"batch":   ipc.Typed(p.cmdBatch),
		"close":   ipc.Typed(p.cmdClose),
	}
}

func (p *Plugin) cmdLoad(ctx context.Context, a loadArgs) (any, error) {
	if _, err := p.load(ctx, a.DB); err != nil {
		return nil, err
	}
	return a.DB, nil
}

func (p *Plugin) cmdExecute(ctx context.Context, a queryArgs) (any, error) {
	db, err := p.conn(a.DB)
	if err != nil {
		return nil, err
	}
	defer metrics.ObserveSQL("execute", time.Now())

	res, err := db.ExecContext(ctx, a.Query, a.Values...)
	if err != nil {
		return nil, fmt.Errorf("sql: execute: %w", err)
	}
	return result(res), nil
}

func (p *Plugin) cmdSelect(ctx context.Context, a queryArgs) (any, error) {
	db, err := p.conn(a.DB)
	if err != nil {
		return nil, err
	}
	defer metrics.ObserveSQL("select", time.Now())

	rows, err := db.QueryContext(ctx, a.Query, a.Values...)
	if err != nil {
		return nil, fmt.Errorf("sql: select: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// cmdBatch runs every statement in one transaction on one connection.
func (p *Plugin) cmdBatch(ctx context.Context, a batchArgs) (any, error) {
	db, err := p.conn(a.DB)
	if err != nil {
		return nil, err
	}
	defer metrics.ObserveSQL("batch", time.Now())

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sql: batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	out := make([]ExecResult, 0, len(a.Statements))
	for i, st := range a.Statements {
		res, err := tx.ExecContext(ctx, st.Query, st.Values...)
		if err != nil {
			return nil, fmt.Errorf("sql: batch statement %d: %w", i, err)
		}
		out = append(out, result(res))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sql: batch: commit: %w", err)
	}
	return out, nil
}

func (p *Plugin) cmdClose(_ context.Context, a loadArgs) (any, error) {
	if a.DB == "" {
		return true, p.Close()
	}
	p.mu.Lock()
	delete(p.loaded, a.DB)
	p.mu.Unlock()
	return true, database.Close(a.DB)
}

func result(res sql.Result) ExecResult {
	// SQLite always reports both.
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return ExecResult{RowsAffected: affected, LastInsertID: lastID}
}
