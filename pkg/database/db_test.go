package database_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplepos/shell/config"
	"github.com/simplepos/shell/pkg/database"
)

func TestPath(t *testing.T) {
	dir := t.TempDir()
	config.Set("DATA_DIR", dir)

	assert.Equal(t, filepath.Join(dir, "simple-pos.db"), database.Path("sqlite:simple-pos.db"))
	assert.Equal(t, filepath.Join(dir, "bistro.db"), database.Path("bistro.db"))
	assert.Equal(t, ":memory:", database.Path("sqlite::memory:"))

	abs := filepath.Join(dir, "elsewhere", "x.db")
	assert.Equal(t, abs, database.Path("sqlite:"+abs))
}

func TestConnect_RegistersAndEnablesForeignKeys(t *testing.T) {
	config.Set("DATA_DIR", t.TempDir())
	url := "sqlite:registry-test.db"

	db, err := database.Connect(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(url) })

	again, err := database.Connect(url)
	require.NoError(t, err)
	assert.Same(t, db, again)

	got, err := database.Get(url)
	require.NoError(t, err)
	assert.Same(t, db, got)
	assert.Contains(t, database.Loaded(), url)

	var fk int
	require.NoError(t, db.Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)

	var mode string
	require.NoError(t, db.Raw("PRAGMA journal_mode").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)

	require.NoError(t, database.Close(url))
	_, err = database.Get(url)
	assert.ErrorIs(t, err, database.ErrNotLoaded)
}

func TestOpen_MemoryIsPrivate(t *testing.T) {
	a, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	b, err := database.Open("sqlite::memory:")
	require.NoError(t, err)

	require.NoError(t, a.Exec("CREATE TABLE only_in_a (id INTEGER)").Error)
	assert.True(t, a.Migrator().HasTable("only_in_a"))
	assert.False(t, b.Migrator().HasTable("only_in_a"))
}
