// Package updater checks a release endpoint for a newer build, verifies the
// minisign signature of the downloaded artifact and swaps it in place of
// the running executable.
package updater

import (
	"context"
	"errors"
	"fmt"
	gohttp "net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/simplepos/shell/config"
	"github.com/simplepos/shell/pkg/http"
	"github.com/simplepos/shell/pkg/logger"
)

var (
	ErrNoEndpoint  = errors.New("updater: no update endpoint configured")
	ErrNoPublicKey = errors.New("updater: no public key configured")
	ErrNoPlatform  = errors.New("updater: release has no artifact for this platform")
)

// Progress is the payload of the progress event. ContentLength is zero
// when the server does not send one.
type Progress struct {
	ChunkLength   int   `json:"chunkLength"`
	ContentLength int64 `json:"contentLength"`
	Downloaded    int64 `json:"downloaded"`
}

// Updater talks to one release endpoint.
type Updater struct {
	Endpoint       string
	PublicKey      string
	CurrentVersion string
	Target         string
	// Timeout bounds each manifest request. Downloads are bounded by the
	// caller's context only.
	Timeout time.Duration
	// Client overrides the shared pkg/http client.
	Client *gohttp.Client
	// Executable is the file Install replaces. Empty means os.Executable.
	Executable string
}

// FromConfig returns an Updater for version using UPDATER_ENDPOINT,
// UPDATER_PUBKEY and UPDATER_TIMEOUT.
func FromConfig(version string) *Updater {
	return &Updater{
		Endpoint:       config.UpdaterEndpoint(),
		PublicKey:      config.UpdaterPubkey(),
		CurrentVersion: version,
		Target:         Target(),
		Timeout:        config.UpdaterTimeout(),
	}
}

func (u *Updater) target() string {
	if u.Target != "" {
		return u.Target
	}
	return Target()
}

// Check returns the available update, or nil when the current version is
// the latest.
func (u *Updater) Check(ctx context.Context) (*Update, error) {
	if u.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	target := u.target()

	m, err := fetchManifest(ctx, u.Client, u.Timeout, endpointURL(u.Endpoint, target, u.CurrentVersion))
	if err != nil || m == nil {
		return nil, err
	}

	newer, err := Newer(u.CurrentVersion, m.Version)
	if err != nil {
		return nil, err
	}
	if !newer {
		return nil, nil
	}

	p, ok := m.Platforms[target]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPlatform, target)
	}

	upd := &Update{
		CurrentVersion: u.CurrentVersion,
		Version:        m.Version,
		Notes:          m.Notes,
		Target:         target,
		URL:            p.URL,
		Signature:      p.Signature,
	}
	if m.PubDate != "" {
		if t, err := time.Parse(time.RFC3339, m.PubDate); err == nil {
			upd.Date = t
		}
	}
	return upd, nil
}

// Download fetches the artifact of upd and verifies its signature. progress
// may be nil.
func (u *Updater) Download(ctx context.Context, upd *Update, progress func(Progress)) ([]byte, error) {
	if u.PublicKey == "" {
		return nil, ErrNoPublicKey
	}
	pk, err := ParsePublicKey(u.PublicKey)
	if err != nil {
		return nil, err
	}
	sig, err := ParseSignature(upd.Signature)
	if err != nil {
		return nil, err
	}

	resp, err := http.Get(upd.URL).
		WithContext(ctx).
		Client(u.Client).
		Header("Accept", "application/octet-stream").
		Timeout(0).
		Retry(2, time.Second).
		Download(func(p http.Progress) {
			if progress != nil {
				progress(Progress{ChunkLength: p.ChunkLength, ContentLength: p.ContentLength, Downloaded: p.Downloaded})
			}
		})
	if err != nil {
		return nil, fmt.Errorf("updater: download: %w", err)
	}

	if err := pk.Verify(resp.Raw, sig); err != nil {
		return nil, err
	}
	return resp.Raw, nil
}

// Install replaces the executable with data. The previous binary is kept
// next to it with a ".old" suffix until the next install.
func (u *Updater) Install(data []byte) error {
	exe := u.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return fmt.Errorf("updater: %w", err)
		}
		if exe, err = filepath.EvalSymlinks(exe); err != nil {
			return fmt.Errorf("updater: %w", err)
		}
	}

	mode := os.FileMode(0o755)
	if fi, err := os.Stat(exe); err == nil {
		mode = fi.Mode().Perm()
	}

	staged := exe + ".new"
	if err := os.WriteFile(staged, data, mode); err != nil {
		return fmt.Errorf("updater: stage: %w", err)
	}

	old := exe + ".old"
	_ = os.Remove(old)
	if err := os.Rename(exe, old); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(staged)
		return fmt.Errorf("updater: move current executable: %w", err)
	}
	if err := os.Rename(staged, exe); err != nil {
		_ = os.Rename(old, exe)
		return fmt.Errorf("updater: swap executable: %w", err)
	}

	logger.Target("updater").Info("updater: installed", "path", exe, "bytes", len(data))
	return nil
}
