// Package migrations embeds the SQL schema for both application profiles and
// registers it with pkg/migration. Importing the package is enough:
//
//	import _ "github.com/simplepos/shell/database/migrations"
package migrations

import (
	"embed"

	"github.com/simplepos/shell/pkg/migration"
)

// Database URLs the profiles migrate.
const (
	NativeDatabase = "sqlite:simple-pos.db"
	BistroDatabase = "sqlite:bistro.db"
)

//go:embed native/*.sql bistro/*.sql
var files embed.FS

// Native returns the migration set of the current application:
// v1 "create initial tables" and v2 "complete schema".
func Native() []migration.Migration {
	return migration.MustFromFS(files, "native")
}

// Bistro returns the single-version set of the older bistro build.
func Bistro() []migration.Migration {
	return migration.MustFromFS(files, "bistro")
}

func init() {
	migration.Register(NativeDatabase, Native()...)
	migration.Register(BistroDatabase, Bistro()...)
}
