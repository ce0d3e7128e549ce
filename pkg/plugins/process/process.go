// Package process lets the webview end or restart the application.
package process

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/simplepos/shell/pkg/app"
	"github.com/simplepos/shell/pkg/ipc"
	"github.com/simplepos/shell/pkg/logger"
)

const Name = "process"

var errNotInitialised = errors.New("process: plugin not initialised")

type Plugin struct {
	host *app.Host
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Init(_ context.Context, host *app.Host) error {
	p.host = host
	return nil
}

func (p *Plugin) Close() error { return nil }

type exitArgs struct {
	Code int `json:"code" validate:"between=0,255"`
}

func (p *Plugin) Commands() map[string]ipc.Handler {
	return map[string]ipc.Handler{
		"exit": ipc.Typed(func(ctx context.Context, a exitArgs) (any, error) {
			if p.host == nil {
				return nil, errNotInitialised
			}
			logger.WithCtx(ctx).Info("process: exit requested", "code", a.Code)
			p.host.Exit(a.Code)
			return nil, nil
		}),
		"restart": func(ctx context.Context, _ json.RawMessage) (any, error) {
			if p.host == nil {
				return nil, errNotInitialised
			}
			logger.WithCtx(ctx).Info("process: restart requested")
			p.host.Restart()
			return nil, nil
		},
	}
}
