package updater

import (
	"context"
	"fmt"
	gohttp "net/http"
	"runtime"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/simplepos/shell/pkg/http"
)

// Platform is one downloadable artifact of a release.
type Platform struct {
	URL       string `json:"url"`
	Signature string `json:"signature"`
}

// Manifest is the release document served by the update endpoint.
type Manifest struct {
	Version   string              `json:"version"`
	Notes     string              `json:"notes"`
	PubDate   string              `json:"pub_date"`
	Platforms map[string]Platform `json:"platforms"`
}

// Update is an available release for this platform.
type Update struct {
	CurrentVersion string    `json:"currentVersion"`
	Version        string    `json:"version"`
	Notes          string    `json:"body,omitempty"`
	Date           time.Time `json:"date,omitzero"`
	Target         string    `json:"target"`
	URL            string    `json:"downloadUrl"`
	Signature      string    `json:"-"`
}

// Target is the manifest platform key for this build, such as
// "linux-x86_64" or "darwin-aarch64".
func Target() string {
	return targetFor(runtime.GOOS, runtime.GOARCH)
}

func targetFor(goos, goarch string) string {
	arch := goarch
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	case "arm":
		arch = "armv7"
	}
	return goos + "-" + arch
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Newer reports whether candidate is a higher semantic version than
// current. Both may omit the leading "v".
func Newer(current, candidate string) (bool, error) {
	c, n := canonical(current), canonical(candidate)
	if !semver.IsValid(c) {
		return false, fmt.Errorf("updater: invalid current version %q", current)
	}
	if !semver.IsValid(n) {
		return false, fmt.Errorf("updater: invalid release version %q", candidate)
	}
	return semver.Compare(n, c) > 0, nil
}

// endpointURL fills the {{target}}, {{arch}} and {{current_version}}
// placeholders.
func endpointURL(endpoint, target, current string) string {
	arch := target[strings.IndexByte(target, '-')+1:]
	return strings.NewReplacer(
		"{{target}}", target,
		"{{arch}}", arch,
		"{{current_version}}", current,
	).Replace(endpoint)
}

// fetchManifest returns nil without error when the endpoint answers 204.
func fetchManifest(ctx context.Context, client *gohttp.Client, timeout time.Duration, url string) (*Manifest, error) {
	resp, err := http.Get(url).
		WithContext(ctx).
		Client(client).
		Timeout(timeout).
		Retry(3, time.Second).
		Limit(1 << 20).
		Send()
	if err != nil {
		return nil, fmt.Errorf("updater: fetch manifest: %w", err)
	}
	if resp.StatusCode == gohttp.StatusNoContent {
		return nil, nil
	}

	var m Manifest
	if err := resp.JSON(&m); err != nil {
		return nil, fmt.Errorf("updater: %w", err)
	}
	return &m, nil
}
