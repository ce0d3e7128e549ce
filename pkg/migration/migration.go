// Package migration runs versioned SQL schema migrations against the shell's
// SQLite databases.
//
// Migration sets are registered per database URL, normally from an init()
// in database/migrations:
//
//	func init() {
//	    migration.Register("sqlite:simple-pos.db",
//	        migration.Migration{Version: 1, Description: "create initial tables", SQL: initialSQL, Kind: migration.Up},
//	    )
//	}
//
// and applied at startup, in ascending version order, each exactly once:
//
//	runner := migration.ForDatabase(db, "sqlite:simple-pos.db")
//	if err := runner.Run(ctx); err != nil { ... }
package migration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/metrics"
)

// Kind is the direction of a migration.
type Kind int

const (
	Up Kind = iota
	Down
)

func (k Kind) String() string {
	if k == Down {
		return "down"
	}
	return "up"
}

// Migration is a single versioned SQL script.
type Migration struct {
	Version     int64
	Description string
	SQL         string
	Kind        Kind
}

// Checksum identifies the script text. Whitespace at either end is ignored.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(m.SQL)))
	return hex.EncodeToString(sum[:])
}

var (
	// ErrChecksumMismatch is returned when an applied migration's script
	// has been edited since it ran.
	ErrChecksumMismatch = errors.New("migration: checksum mismatch")
	// ErrDuplicateVersion is returned when a set holds two migrations with
	// the same version and kind.
	ErrDuplicateVersion = errors.New("migration: duplicate version")
	// ErrNoDown is returned by Rollback when an applied migration has no
	// down script.
	ErrNoDown = errors.New("migration: no down migration")
)

// ------------------- Registry -------------------

var (
	regMu    sync.RWMutex
	registry = map[string][]Migration{}
)

// Register adds migrations to the set for database.
func Register(database string, migrations ...Migration) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[database] = append(registry[database], migrations...)
}

// For returns the migrations registered for database, sorted by version with
// each up script ahead of its down script.
func For(database string) []Migration {
	regMu.RLock()
	defer regMu.RUnlock()
	return sorted(registry[database])
}

// Databases lists every database URL with registered migrations.
func Databases() []string {
	regMu.RLock()
	defer regMu.RUnlock()

	out := make([]string, 0, len(registry))
	for db := range registry {
		out = append(out, db)
	}
	sort.Strings(out)
	return out
}

func sorted(ms []Migration) []Migration {
	out := append([]Migration(nil), ms...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// ------------------- Tracking table -------------------

const tableName = "_schema_migrations"

// record is the GORM model stored in the tracking table.
type record struct {
	Version     int64     `gorm:"primaryKey;autoIncrement:false"`
	Description string    `gorm:"not null"`
	Checksum    string    `gorm:"size:64;not null"`
	Batch       int       `gorm:"not null;index"`
	Success     bool      `gorm:"not null"`
	ExecutionMs int64     `gorm:"not null"`
	InstalledOn time.Time `gorm:"not null"`
}

func (record) TableName() string { return tableName }

// StatusRow describes one migration for `migrate:status`.
type StatusRow struct {
	Version     int64
	Description string
	Applied     bool
	Batch       int
	AppliedAt   time.Time
	// Unknown is set for rows recorded in the database that are not part
	// of the registered set.
	Unknown bool
}

// ------------------- Runner -------------------

// Runner executes and tracks migrations.
type Runner struct {
	db   *gorm.DB
	name string
	set  []Migration
	log  *slog.Logger

	// Progress receives one line per applied or rolled back migration.
	// Nil keeps the runner quiet.
	Progress io.Writer
}

// New creates a Runner for the given set backed by db. name labels logs
// and metrics.
func New(db *gorm.DB, name string, set []Migration) *Runner {
	return &Runner{
		db:   db,
		name: name,
		set:  sorted(set),
		log:  logger.Target("migration").With("database", name),
	}
}

// ForDatabase creates a Runner over the migrations registered for url.
func ForDatabase(db *gorm.DB, url string) *Runner {
	return New(db, url, For(url))
}

// EnsureTable creates the tracking table if it does not exist.
func (r *Runner) EnsureTable() error {
	if err := r.db.AutoMigrate(&record{}); err != nil {
		return fmt.Errorf("migration: ensure table: %w", err)
	}
	return nil
}

func (r *Runner) validate() error {
	seen := map[[2]int64]bool{}
	for _, m := range r.set {
		key := [2]int64{m.Version, int64(m.Kind)}
		if seen[key] {
			return fmt.Errorf("%w: %d (%s) in %s", ErrDuplicateVersion, m.Version, m.Kind, r.name)
		}
		seen[key] = true
	}
	return nil
}

func (r *Runner) applied(ctx context.Context) (map[int64]record, error) {
	var rows []record
	if err := r.db.WithContext(ctx).Order("version").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("migration: read applied: %w", err)
	}
	out := make(map[int64]record, len(rows))
	for _, row := range rows {
		out[row.Version] = row
	}
	return out, nil
}

// Pending returns the up migrations that have not been applied yet, in
// ascending version order.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	if err := r.EnsureTable(); err != nil {
		return nil, err
	}
	done, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, m := range r.set {
		if m.Kind != Up {
			continue
		}
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Run applies all pending up migrations as one batch. Each migration runs
// in its own transaction together with its tracking row, so a failure
// leaves earlier migrations applied and the failing one untouched.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}
	if err := r.EnsureTable(); err != nil {
		return err
	}

	done, err := r.applied(ctx)
	if err != nil {
		return err
	}

	var pending []Migration
	for _, m := range r.set {
		if m.Kind != Up {
			continue
		}
		rec, ok := done[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if rec.Checksum != m.Checksum() {
			return fmt.Errorf("%w: version %d (%s) in %s", ErrChecksumMismatch, m.Version, m.Description, r.name)
		}
	}

	if len(pending) == 0 {
		r.log.Debug("migration: nothing to migrate")
		return nil
	}

	batch := nextBatch(done)
	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.apply(ctx, m, batch); err != nil {
			return err
		}
	}

	r.log.Info("migration: done", "ran", len(pending), "batch", batch)
	return nil
}

func (r *Runner) apply(ctx context.Context, m Migration, batch int) error {
	r.log.Info("migration: running", "version", m.Version, "description", m.Description)
	start := time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := execScript(tx, m.SQL); err != nil {
			return err
		}
		return tx.Create(&record{
			Version:     m.Version,
			Description: m.Description,
			Checksum:    m.Checksum(),
			Batch:       batch,
			Success:     true,
			ExecutionMs: time.Since(start).Milliseconds(),
			InstalledOn: time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("migration: %s v%d %q: %w", r.name, m.Version, m.Description, err)
	}

	metrics.MigrationsApplied.WithLabelValues(r.name).Inc()
	r.progress("  ▶ Migrated:     %d %s\n", m.Version, m.Description)
	return nil
}

// Rollback reverses the most recent batch in descending version order.
// Every migration in the batch must have a down script; nothing is rolled
// back otherwise.
func (r *Runner) Rollback(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}
	if err := r.EnsureTable(); err != nil {
		return err
	}

	done, err := r.applied(ctx)
	if err != nil {
		return err
	}
	last := nextBatch(done) - 1
	if last == 0 {
		r.progress("Nothing to roll back.\n")
		return nil
	}

	downs := make(map[int64]Migration)
	for _, m := range r.set {
		if m.Kind == Down {
			downs[m.Version] = m
		}
	}

	var batch []record
	for _, rec := range done {
		if rec.Batch == last {
			batch = append(batch, rec)
		}
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Version > batch[j].Version })

	for _, rec := range batch {
		if _, ok := downs[rec.Version]; !ok {
			return fmt.Errorf("%w: version %d (%s) in %s", ErrNoDown, rec.Version, rec.Description, r.name)
		}
	}

	for _, rec := range batch {
		m := downs[rec.Version]
		r.log.Info("migration: rolling back", "version", rec.Version, "description", rec.Description)

		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := execScript(tx, m.SQL); err != nil {
				return err
			}
			return tx.Delete(&record{}, "version = ?", rec.Version).Error
		})
		if err != nil {
			return fmt.Errorf("migration: %s rollback v%d: %w", r.name, rec.Version, err)
		}
		r.progress("  ◀ Rolled back:  %d %s\n", rec.Version, rec.Description)
	}
	return nil
}

// Status reports every registered up migration and whether it has run,
// plus any recorded version the set no longer knows about.
func (r *Runner) Status(ctx context.Context) ([]StatusRow, error) {
	if err := r.EnsureTable(); err != nil {
		return nil, err
	}
	done, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}

	var rows []StatusRow
	known := map[int64]bool{}
	for _, m := range r.set {
		if m.Kind != Up {
			continue
		}
		known[m.Version] = true
		row := StatusRow{Version: m.Version, Description: m.Description}
		if rec, ok := done[m.Version]; ok {
			row.Applied = true
			row.Batch = rec.Batch
			row.AppliedAt = rec.InstalledOn
		}
		rows = append(rows, row)
	}
	for v, rec := range done {
		if !known[v] {
			rows = append(rows, StatusRow{
				Version:     v,
				Description: rec.Description,
				Applied:     true,
				Batch:       rec.Batch,
				AppliedAt:   rec.InstalledOn,
				Unknown:     true,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })
	return rows, nil
}

func (r *Runner) progress(format string, args ...any) {
	if r.Progress != nil {
		fmt.Fprintf(r.Progress, format, args...)
	}
}

func nextBatch(done map[int64]record) int {
	max := 0
	for _, rec := range done {
		if rec.Batch > max {
			max = rec.Batch
		}
	}
	return max + 1
}

func execScript(tx *gorm.DB, script string) error {
	for _, stmt := range Split(script) {
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
