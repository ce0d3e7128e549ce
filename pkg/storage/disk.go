// Package storage is where backups and staged update artifacts are kept.
//
// Two drivers are available:
//   - "local": a directory under the data dir (default)
//   - "s3":    S3-compatible object storage (AWS S3, MinIO, R2, Spaces)
//
// Quick start:
//
//	storage.Connect(ctx)
//
//	disk, _ := storage.Default()
//	disk.Put(ctx, "backups/2024-05-01.db.enc", data)
//
//	s3, _ := storage.Use("s3")
//	names, _ := s3.Files(ctx, "backups")
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get, GetStream and Stat for missing paths.
var ErrNotFound = errors.New("storage: not found")

// Info describes a stored file.
type Info struct {
	Path     string
	Size     int64
	Modified time.Time
}

// Disk is the filesystem driver interface. Paths are slash separated and
// relative to the disk root.
type Disk interface {
	Put(ctx context.Context, path string, content []byte) error
	PutStream(ctx context.Context, path string, r io.Reader) error

	Get(ctx context.Context, path string) ([]byte, error)
	// GetStream returns a ReadCloser for the file. Caller must close it.
	GetStream(ctx context.Context, path string) (io.ReadCloser, error)

	Exists(ctx context.Context, path string) bool
	Stat(ctx context.Context, path string) (Info, error)
	URL(path string) string

	// Delete removes a file. Returns nil if the file did not exist.
	Delete(ctx context.Context, path string) error

	// Files lists the files directly inside directory, sorted by path.
	Files(ctx context.Context, directory string) ([]Info, error)
}
