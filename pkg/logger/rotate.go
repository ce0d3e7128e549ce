package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation decides what happens to rotated log files.
type Rotation int

const (
	// KeepAll never deletes rotated files.
	KeepAll Rotation = iota
	// KeepOne keeps only the most recent rotated file.
	KeepOne
)

// ParseRotation maps "keep_all" / "keep_one" to a Rotation. Unknown values
// keep everything.
func ParseRotation(s string) Rotation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "keep_one", "keepone":
		return KeepOne
	default:
		return KeepAll
	}
}

func (r Rotation) String() string {
	if r == KeepOne {
		return "keep_one"
	}
	return "keep_all"
}

const megabyte = 1024 * 1024

// megabytes converts a byte threshold to lumberjack's unit, rounding up.
// A limit of 10000000 bytes therefore rotates at 10485760.
func megabytes(maxSize int64) int {
	if maxSize <= 0 {
		return 10
	}
	return int((maxSize + megabyte - 1) / megabyte)
}

// newRotatingFile opens dir/name for appending, rotating once it grows past
// maxSize bytes.
func newRotatingFile(dir, name string, maxSize int64, rotation Rotation) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}

	sizeMB := megabytes(maxSize)
	backups := 0 // lumberjack: 0 retains every rotated file
	if rotation == KeepOne {
		backups = 1
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    sizeMB,
		MaxBackups: backups,
		LocalTime:  true,
	}, nil
}
