package backup_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/simplepos/shell/pkg/backup"
	"github.com/simplepos/shell/pkg/crypt"
	"github.com/simplepos/shell/pkg/database"
	"github.com/simplepos/shell/pkg/storage"
)

func seededDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	require.NoError(t, db.Exec(`CREATE TABLE product (id TEXT PRIMARY KEY, name TEXT)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO product VALUES ('p1', 'Espresso')`).Error)
	return db
}

func newDisk(t *testing.T) *storage.LocalDisk {
	t.Helper()
	d, err := storage.NewLocalDisk(t.TempDir())
	require.NoError(t, err)
	return d
}

func productName(t *testing.T, file string) string {
	t.Helper()
	db, err := database.Open(file)
	require.NoError(t, err)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()
	var name string
	require.NoError(t, db.Raw(`SELECT name FROM product WHERE id = 'p1'`).Scan(&name).Error)
	return name
}

func TestCreateAndRestore_Plain(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)
	disk := newDisk(t)
	now := time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC)

	res, err := backup.Create(ctx, db, backup.Options{Disk: disk, Now: now})
	require.NoError(t, err)
	assert.False(t, res.Encrypted)
	assert.True(t, strings.HasPrefix(res.Path, "backups/20240501T223000Z-"))
	assert.True(t, strings.HasSuffix(res.Path, ".db"))
	assert.True(t, disk.Exists(ctx, res.Path))

	dest := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, backup.Restore(ctx, disk, res.Path, "", dest))
	assert.Equal(t, "Espresso", productName(t, dest))
}

func TestCreateAndRestore_Encrypted(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)
	disk := newDisk(t)

	_, err := backup.Create(ctx, db, backup.Options{Disk: disk, Encrypt: true})
	assert.ErrorIs(t, err, backup.ErrPasswordRequired)

	res, err := backup.Create(ctx, db, backup.Options{Disk: disk, Encrypt: true, Password: "1234"})
	require.NoError(t, err)
	assert.True(t, res.Encrypted)
	assert.True(t, backup.IsEncrypted(res.Path))

	dest := filepath.Join(t.TempDir(), "restored.db")
	err = backup.Restore(ctx, disk, res.Path, "wrong", dest)
	assert.ErrorIs(t, err, crypt.ErrDecrypt)
	assert.ErrorIs(t, backup.Restore(ctx, disk, res.Path, "", dest), backup.ErrPasswordRequired)

	require.NoError(t, backup.Restore(ctx, disk, res.Path, "1234", dest))
	assert.Equal(t, "Espresso", productName(t, dest))
}

func TestRestore_RejectsNonDatabase(t *testing.T) {
	ctx := context.Background()
	disk := newDisk(t)
	require.NoError(t, disk.Put(ctx, "backups/junk.db", []byte("hello")))

	err := backup.Restore(ctx, disk, "backups/junk.db", "", filepath.Join(t.TempDir(), "x.db"))
	assert.ErrorContains(t, err, "not a SQLite database")
}

func TestListAndPrune(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)
	disk := newDisk(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := backup.Create(ctx, db, backup.Options{Disk: disk, Now: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	require.NoError(t, disk.Put(ctx, "backups/notes.txt", []byte("ignored")))

	files, err := backup.List(ctx, disk)
	require.NoError(t, err)
	require.Len(t, files, 4)

	removed, err := backup.Prune(ctx, disk, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	files, err = backup.List(ctx, disk)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.True(t, strings.HasPrefix(files[0].Path, "backups/20240501T020000Z-"))
	assert.True(t, strings.HasPrefix(files[1].Path, "backups/20240501T030000Z-"))
}
