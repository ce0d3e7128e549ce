package updater

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/simplepos/shell/pkg/app"
	"github.com/simplepos/shell/pkg/ipc"
	"github.com/simplepos/shell/pkg/logger"
)

const Name = "updater"

// Events emitted during download_and_install.
const (
	EventProgress  = "updater://progress"
	EventFinished  = "updater://download-finished"
	EventInstalled = "updater://installed"
)

// Plugin exposes check and download_and_install to the webview.
type Plugin struct {
	u    *Updater
	host *app.Host

	mu      sync.Mutex
	pending *Update
}

// New returns the plugin for the running version, configured from the
// environment.
func New(version string) *Plugin { return NewWith(FromConfig(version)) }

// NewWith wraps an explicit Updater.
func NewWith(u *Updater) *Plugin { return &Plugin{u: u} }

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Init(_ context.Context, host *app.Host) error {
	p.host = host
	if p.u.Endpoint == "" {
		logger.Target("updater").Debug("updater: no endpoint configured")
	}
	return nil
}

func (p *Plugin) Close() error { return nil }

func (p *Plugin) Commands() map[string]ipc.Handler {
	return map[string]ipc.Handler{
		"check":                p.check,
		"download_and_install": p.downloadAndInstall,
	}
}

// check answers null when no update is available.
func (p *Plugin) check(ctx context.Context, _ json.RawMessage) (any, error) {
	upd, err := p.u.Check(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.pending = upd
	p.mu.Unlock()
	if upd == nil {
		return nil, nil
	}
	return upd, nil
}

func (p *Plugin) downloadAndInstall(ctx context.Context, _ json.RawMessage) (any, error) {
	p.mu.Lock()
	upd := p.pending
	p.mu.Unlock()
	if upd == nil {
		var err error
		if upd, err = p.u.Check(ctx); err != nil {
			return nil, err
		}
		if upd == nil {
			return nil, nil
		}
	}

	log := logger.WithCtx(ctx).With(logger.TargetKey, "updater", "version", upd.Version)
	log.Info("updater: downloading", "url", upd.URL)

	data, err := p.u.Download(ctx, upd, func(pr Progress) {
		p.emit(EventProgress, pr)
	})
	if err != nil {
		log.Warn("updater: download failed", "error", err)
		return nil, err
	}
	p.emit(EventFinished, nil)

	if err := p.u.Install(data); err != nil {
		log.Error("updater: install failed", "error", err)
		return nil, err
	}
	p.emit(EventInstalled, map[string]string{"version": upd.Version})

	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
	return upd, nil
}

func (p *Plugin) emit(name string, payload any) {
	if p.host != nil {
		p.host.Events.Emit(name, payload)
	}
}
