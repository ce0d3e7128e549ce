// Package logger provides the shell's structured, levelled logger built on
// log/slog.
//
// Until Setup is called every record goes to stdout. Setup (normally invoked
// by the log plugin while the application boots) adds a size-rotated log
// file, per-target level overrides and, optionally, a MongoDB sink:
//
//	closer, err := logger.Setup(logger.OptionsFromConfig())
//	defer closer.Close()
//
//	log := logger.Target("printer")
//	log.Info("job sent", "bytes", 512)
//	// → time=... level=INFO msg="job sent" target=printer bytes=512
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/simplepos/shell/config"
)

// TargetKey is the attribute naming the subsystem a record comes from.
const TargetKey = "target"

var (
	L *slog.Logger

	setupMu sync.Mutex
	closers []io.Closer
)

func init() {
	L = slog.New(consoleHandler(os.Stdout, slog.LevelDebug))
	slog.SetDefault(L)
}

// Options configures Setup.
type Options struct {
	Level       slog.Level
	Targets     map[string]slog.Level
	Dir         string // empty disables the file sink
	FileName    string
	MaxFileSize int64
	Rotation    Rotation
	MongoURI    string
	MongoDB     string
	MongoColl   string
	Console     io.Writer // nil disables console output
}

// OptionsFromConfig builds Options from the config package.
func OptionsFromConfig() Options {
	targets := map[string]slog.Level{}
	for name, lvl := range config.LogTargets() {
		targets[name] = ParseLevel(lvl)
	}
	return Options{
		Level:       ParseLevel(config.LogLevel()),
		Targets:     targets,
		Dir:         config.LogDir(),
		FileName:    "simplepos.log",
		MaxFileSize: config.LogMaxFileSize(),
		Rotation:    ParseRotation(config.LogRotation()),
		MongoURI:    config.LogMongoURI(),
		MongoDB:     config.LogMongoDatabase(),
		MongoColl:   config.LogMongoCollection(),
		Console:     os.Stdout,
	}
}

// Setup replaces the default logger according to opts. The returned closer
// flushes and releases the file and remote sinks.
func Setup(opts Options) (io.Closer, error) {
	setupMu.Lock()
	defer setupMu.Unlock()

	var (
		sinks []slog.Handler
		owned []io.Closer
	)

	if opts.Console != nil {
		sinks = append(sinks, consoleHandler(opts.Console, slog.LevelDebug))
	}

	if opts.Dir != "" {
		name := opts.FileName
		if name == "" {
			name = "simplepos.log"
		}
		file, err := newRotatingFile(opts.Dir, name, opts.MaxFileSize, opts.Rotation)
		if err != nil {
			return nil, err
		}
		owned = append(owned, file)
		sinks = append(sinks, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if opts.MongoURI != "" {
		mh, err := NewMongoHandler(opts.MongoURI, opts.MongoDB, opts.MongoColl)
		if err != nil {
			L.Warn("logger: mongo sink disabled", "error", err)
		} else {
			owned = append(owned, mh)
			sinks = append(sinks, mh)
		}
	}

	if len(sinks) == 0 {
		sinks = append(sinks, slog.NewTextHandler(io.Discard, nil))
	}

	root := NewTargetHandler(NewMultiHandler(sinks...), opts.Level, opts.Targets)
	L = slog.New(root)
	slog.SetDefault(L)

	closers = append(closers, owned...)
	return closerFunc(closeAll), nil
}

func closeAll() error {
	setupMu.Lock()
	defer setupMu.Unlock()

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	closers = nil
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func consoleHandler(w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if config.IsProduction() {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps trace/debug/info/warn/error/off to a slog level. Unknown
// names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "off":
		return slog.LevelError + 100
	default:
		return slog.LevelInfo
	}
}

// ─────────────────────────────────────────────
// Context-aware logger
// ─────────────────────────────────────────────

type ctxKey struct{}

// WithCtx returns the logger stored by InjectLogger, or the base logger.
func WithCtx(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return L
}

// InjectLogger stores a *slog.Logger (pre-tagged with request_id) into ctx.
func InjectLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// Target returns a logger whose records carry target=name, so per-target
// level overrides apply to them.
func Target(name string) *slog.Logger {
	return L.With(TargetKey, name)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs at INFO level.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs at WARN level.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs at ERROR level.
func Error(msg string, args ...any) { L.Error(msg, args...) }

// Log writes msg at level with the given target. Used to forward log lines
// coming from the UI.
func Log(ctx context.Context, level slog.Level, target, msg string, args ...any) {
	log := L
	if target != "" {
		log = Target(target)
	}
	log.Log(ctx, level, msg, args...)
}
