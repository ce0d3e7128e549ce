// Package backup snapshots the till database onto a storage disk.
//
// A snapshot is taken with VACUUM INTO, so it is consistent while the till
// keeps writing. Encrypted snapshots use the same sealed format as the UI's
// exported backups (see pkg/crypt) and get an ".enc" suffix.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simplepos/shell/pkg/crypt"
	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/metrics"
	"github.com/simplepos/shell/pkg/storage"
)

// Dir is the directory on the disk that holds snapshots.
const Dir = "backups"

const (
	plainExt  = ".db"
	sealedExt = ".db.enc"
)

var ErrPasswordRequired = errors.New("backup: password required for encrypted backup")

// Options controls Create.
type Options struct {
	Encrypt  bool
	Password string
	Disk     storage.Disk
	// Now is used for the file name. Zero means time.Now.
	Now time.Time
}

// Result describes a stored snapshot.
type Result struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Encrypted bool      `json:"encrypted"`
	CreatedAt time.Time `json:"createdAt"`
}

// Create snapshots db and stores it on opts.Disk under
// backups/<timestamp>-<id>.db[.enc].
func Create(ctx context.Context, db *gorm.DB, opts Options) (res Result, err error) {
	defer func() { metrics.BackupsTotal.WithLabelValues(metrics.Result(err)).Inc() }()

	if opts.Disk == nil {
		return Result{}, errors.New("backup: no disk")
	}
	if opts.Encrypt && opts.Password == "" {
		return Result{}, ErrPasswordRequired
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	data, err := Snapshot(ctx, db)
	if err != nil {
		return Result{}, err
	}

	ext := plainExt
	if opts.Encrypt {
		sealed, err := crypt.Seal(data, opts.Password)
		if err != nil {
			return Result{}, fmt.Errorf("backup: seal: %w", err)
		}
		data = []byte(sealed)
		ext = sealedExt
	}

	res = Result{
		ID:        uuid.NewString(),
		Size:      int64(len(data)),
		Encrypted: opts.Encrypt,
		CreatedAt: now.UTC(),
	}
	res.Path = path.Join(Dir, now.UTC().Format("20060102T150405Z")+"-"+res.ID+ext)

	if err := opts.Disk.Put(ctx, res.Path, data); err != nil {
		return Result{}, fmt.Errorf("backup: store: %w", err)
	}

	logger.Target("backup").Info("backup: created", "path", res.Path, "bytes", res.Size, "encrypted", res.Encrypted)
	return res, nil
}

// Snapshot returns a consistent copy of the database file.
func Snapshot(ctx context.Context, db *gorm.DB) ([]byte, error) {
	dir, err := os.MkdirTemp("", "simplepos-backup-")
	if err != nil {
		return nil, fmt.Errorf("backup: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "snapshot.db")
	if err := db.WithContext(ctx).Exec("VACUUM INTO ?", file).Error; err != nil {
		return nil, fmt.Errorf("backup: vacuum into: %w", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("backup: read snapshot: %w", err)
	}
	return data, nil
}

// IsEncrypted reports whether p names a sealed snapshot.
func IsEncrypted(p string) bool { return strings.HasSuffix(p, sealedExt) }

// Restore reads the snapshot at p from disk and writes the database file to
// dest. The database at dest must be closed by the caller first.
func Restore(ctx context.Context, disk storage.Disk, p, password, dest string) error {
	data, err := disk.Get(ctx, p)
	if err != nil {
		return fmt.Errorf("backup: load %s: %w", p, err)
	}

	if IsEncrypted(p) {
		if password == "" {
			return ErrPasswordRequired
		}
		if data, err = crypt.Open(string(data), password); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}
	if !strings.HasPrefix(string(data), "SQLite format 3\x00") {
		return fmt.Errorf("backup: %s is not a SQLite database", p)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	tmp := dest + ".restore"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("backup: write: %w", err)
	}
	// Stale WAL files would be replayed over the restored file.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(dest + suffix)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("backup: replace %s: %w", dest, err)
	}

	logger.Target("backup").Info("backup: restored", "path", p, "dest", dest)
	return nil
}

// List returns stored snapshots, newest last.
func List(ctx context.Context, disk storage.Disk) ([]storage.Info, error) {
	files, err := disk.Files(ctx, Dir)
	if err != nil {
		return nil, err
	}
	out := files[:0]
	for _, f := range files {
		if strings.HasSuffix(f.Path, plainExt) || IsEncrypted(f.Path) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Prune deletes all but the newest keep snapshots.
func Prune(ctx context.Context, disk storage.Disk, keep int) (int, error) {
	files, err := List(ctx, disk)
	if err != nil {
		return 0, err
	}
	if keep < 0 || len(files) <= keep {
		return 0, nil
	}
	removed := 0
	for _, f := range files[:len(files)-keep] {
		if err := disk.Delete(ctx, f.Path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
