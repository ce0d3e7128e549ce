// Package database opens the shell's SQLite databases.
//
// Databases are addressed the way the UI addresses them: "sqlite:simple-pos.db".
// Relative file names live in the data directory. Connections are kept in a
// registry keyed by that URL so the migration runner, the sql plugin and the
// backup service all share one *gorm.DB per file.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/simplepos/shell/config"
)

const (
	schemePrefix = "sqlite:"
	memory       = ":memory:"
)

// ErrNotLoaded is returned by Get when the database has not been opened.
var ErrNotLoaded = errors.New("database: not loaded")

var (
	mu       sync.Mutex
	registry = map[string]*gorm.DB{}
)

// Connect returns the registered connection for url, opening it first when
// needed.
func Connect(url string) (*gorm.DB, error) {
	mu.Lock()
	defer mu.Unlock()

	if db, ok := registry[url]; ok {
		return db, nil
	}
	db, err := Open(url)
	if err != nil {
		return nil, err
	}
	registry[url] = db
	return db, nil
}

// Get returns an already connected database.
func Get(url string) (*gorm.DB, error) {
	mu.Lock()
	defer mu.Unlock()

	if db, ok := registry[url]; ok {
		return db, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotLoaded, url)
}

// Loaded lists the URLs currently in the registry.
func Loaded() []string {
	mu.Lock()
	defer mu.Unlock()

	out := make([]string, 0, len(registry))
	for url := range registry {
		out = append(out, url)
	}
	return out
}

// Close closes and forgets the connection for url. Closing an unknown url is
// a no-op.
func Close(url string) error {
	mu.Lock()
	db, ok := registry[url]
	delete(registry, url)
	mu.Unlock()

	if !ok {
		return nil
	}
	return closeDB(db)
}

// CloseAll closes every registered connection.
func CloseAll() error {
	mu.Lock()
	dbs := registry
	registry = map[string]*gorm.DB{}
	mu.Unlock()

	var errs []error
	for url, db := range dbs {
		if err := closeDB(db); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

// Open opens a new connection for url without registering it.
// Returns an error instead of calling log.Fatal so the caller can
// shut down gracefully.
func Open(url string) (*gorm.DB, error) {
	path := Path(url)
	inMemory := path == memory

	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("database: create dir: %w", err)
		}
	}

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent), // use pkg/logger, not GORM's own
	}

	db, err := gorm.Open(sqlite.Open(dsn(path)), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", url, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: get sql.DB: %w", err)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: ping %s: %w", url, err)
	}

	return db, nil
}

// Path resolves url to the file it points at. "sqlite::memory:" resolves to
// ":memory:".
func Path(url string) string {
	name := strings.TrimPrefix(strings.TrimSpace(url), schemePrefix)
	if name == memory || name == "" {
		return memory
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(config.DataDir(), name)
}

func dsn(path string) string {
	params := "_foreign_keys=on&_busy_timeout=5000"
	if path == memory {
		return "file::memory:?" + params
	}
	return "file:" + filepath.ToSlash(path) + "?" + params + "&_journal_mode=WAL"
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
