// Package seeders provides a registry of database seed functions.
//
// Seeders must be idempotent: `simplepos seed` may run on a database that
// already holds the rows. Define one in any file in this package:
//
//	func init() {
//	    seeders.Register("codetables", SeedCodeTables)
//	}
package seeders

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gorm.io/gorm"

	"github.com/simplepos/shell/pkg/logger"
)

// SeederFunc is the signature for a seed function. It runs inside a
// transaction.
type SeederFunc func(ctx context.Context, tx *gorm.DB) error

type seederEntry struct {
	name string
	fn   SeederFunc
}

var (
	mu      sync.Mutex
	entries []seederEntry
)

// Register adds a seeder to the global registry.
// Call this from init() in your seeder files.
func Register(name string, fn SeederFunc) {
	mu.Lock()
	defer mu.Unlock()
	entries = append(entries, seederEntry{name: name, fn: fn})
}

// Names lists the registered seeders in registration order.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

// RunAll executes every registered seeder in registration order, each in its
// own transaction. It stops on the first error. Progress lines go to w when
// it is not nil.
func RunAll(ctx context.Context, db *gorm.DB, w io.Writer) error {
	mu.Lock()
	current := make([]seederEntry, len(entries))
	copy(current, entries)
	mu.Unlock()

	if len(current) == 0 {
		printf(w, "  (no seeders registered)\n")
		return nil
	}

	for _, e := range current {
		printf(w, "  • Running seeder: %s … ", e.name)
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return e.fn(ctx, tx)
		})
		if err != nil {
			printf(w, "FAILED\n")
			return fmt.Errorf("seeder %q: %w", e.name, err)
		}
		printf(w, "done\n")
		logger.Info("seeder: done", "seeder", e.name)
	}
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	if w != nil {
		fmt.Fprintf(w, format, args...)
	}
}
