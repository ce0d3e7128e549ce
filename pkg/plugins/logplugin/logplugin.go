// Package logplugin configures the shell logger at boot and forwards log
// lines written by the webview into it.
package logplugin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/simplepos/shell/pkg/app"
	"github.com/simplepos/shell/pkg/ipc"
	"github.com/simplepos/shell/pkg/logger"
)

const Name = "log"

// webviewTarget is used when the caller names no target.
const webviewTarget = "webview"

type Plugin struct {
	opts   *logger.Options
	closer io.Closer
}

// New returns a plugin that calls logger.Setup with OptionsFromConfig.
func New() *Plugin { return &Plugin{} }

// WithOptions overrides the options passed to logger.Setup.
func (p *Plugin) WithOptions(opts logger.Options) *Plugin {
	p.opts = &opts
	return p
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Init(_ context.Context, host *app.Host) error {
	opts := logger.OptionsFromConfig()
	if p.opts != nil {
		opts = *p.opts
	}
	closer, err := logger.Setup(opts)
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}
	p.closer = closer
	logger.Info("log: ready", "app", host.Name, "level", opts.Level.String(), "dir", opts.Dir)
	return nil
}

func (p *Plugin) Close() error {
	if p.closer == nil {
		return nil
	}
	err := p.closer.Close()
	p.closer = nil
	return err
}

// Level accepts a numeric level (1 trace … 5 error) or its name.
type Level slog.Level

func (l *Level) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		switch {
		case n <= 2:
			*l = Level(slog.LevelDebug)
		case n == 3:
			*l = Level(slog.LevelInfo)
		case n == 4:
			*l = Level(slog.LevelWarn)
		default:
			*l = Level(slog.LevelError)
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("log: level must be a number or a name")
	}
	*l = Level(logger.ParseLevel(s))
	return nil
}

type logArgs struct {
	Level     *Level            `json:"level"`
	Message   string            `json:"message"`
	Target    string            `json:"target" validate:"nullable,max=64"`
	Location  string            `json:"location"`
	File      string            `json:"file"`
	Line      int               `json:"line"`
	KeyValues map[string]string `json:"keyValues"`
}

func (p *Plugin) Commands() map[string]ipc.Handler {
	return map[string]ipc.Handler{
		"log": ipc.Typed(func(ctx context.Context, a logArgs) (any, error) {
			level := slog.LevelInfo
			if a.Level != nil {
				level = slog.Level(*a.Level)
			}
			target := a.Target
			if target == "" {
				target = webviewTarget
			}

			var attrs []any
			if a.Location != "" {
				attrs = append(attrs, "location", a.Location)
			}
			if a.File != "" {
				attrs = append(attrs, "file", a.File, "line", a.Line)
			}
			for k, v := range a.KeyValues {
				attrs = append(attrs, k, v)
			}

			logger.Log(ctx, level, target, strings.TrimSpace(a.Message), attrs...)
			return nil, nil
		}),
	}
}
