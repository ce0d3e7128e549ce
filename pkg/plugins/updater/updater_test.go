package updater

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/simplepos/shell/pkg/app"
	"github.com/simplepos/shell/pkg/event"
)

type keypair struct {
	id   [keyIDLength]byte
	priv ed25519.PrivateKey
	pub  string
}

func newKeypair(t *testing.T) keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var kp keypair
	_, err = rand.Read(kp.id[:])
	require.NoError(t, err)
	kp.priv = priv

	raw := append(append([]byte(algLegacy), kp.id[:]...), pub...)
	text := "untrusted comment: minisign public key\n" + base64.StdEncoding.EncodeToString(raw) + "\n"
	kp.pub = base64.StdEncoding.EncodeToString([]byte(text))
	return kp
}

// sign produces the base64-wrapped minisign signature that release
// manifests carry.
func (kp keypair) sign(data []byte, alg string) string {
	msg := data
	if alg == algPrehash {
		sum := blake2b.Sum512(data)
		msg = sum[:]
	}
	sig := ed25519.Sign(kp.priv, msg)
	comment := "timestamp:1700000000\tfile:simple-pos"
	global := ed25519.Sign(kp.priv, append(append([]byte{}, sig...), comment...))

	raw := append(append([]byte(alg), kp.id[:]...), sig...)
	text := "untrusted comment: signature from tauri secret key\n" +
		base64.StdEncoding.EncodeToString(raw) + "\n" +
		"trusted comment: " + comment + "\n" +
		base64.StdEncoding.EncodeToString(global) + "\n"
	return base64.StdEncoding.EncodeToString([]byte(text))
}

func TestVerify(t *testing.T) {
	kp := newKeypair(t)
	pk, err := ParsePublicKey(kp.pub)
	require.NoError(t, err)
	data := []byte("new binary")

	for _, alg := range []string{algLegacy, algPrehash} {
		sig, err := ParseSignature(kp.sign(data, alg))
		require.NoError(t, err)
		assert.NoError(t, pk.Verify(data, sig), alg)
		assert.ErrorIs(t, pk.Verify([]byte("tampered"), sig), ErrVerify, alg)
	}

	sig, err := ParseSignature(kp.sign(data, algPrehash))
	require.NoError(t, err)
	sig.TrustedComment = "timestamp:0"
	assert.ErrorIs(t, pk.Verify(data, sig), ErrVerify)

	other := newKeypair(t)
	sig, err = ParseSignature(other.sign(data, algPrehash))
	require.NoError(t, err)
	assert.ErrorIs(t, pk.Verify(data, sig), ErrKeyMismatch)

	_, err = ParseSignature("not a signature")
	assert.ErrorIs(t, err, ErrBadSignature)
	_, err = ParsePublicKey("bm9wZQ==")
	assert.ErrorIs(t, err, ErrBadPublicKey)
}

func TestNewer(t *testing.T) {
	tests := []struct {
		current, candidate string
		want               bool
	}{
		{"1.0.0", "1.0.1", true},
		{"v1.2.0", "1.10.0", true},
		{"1.0.0", "1.0.0", false},
		{"2.0.0", "1.9.9", false},
		{"1.0.0", "1.0.1-beta.1", true},
	}
	for _, tt := range tests {
		got, err := Newer(tt.current, tt.candidate)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.current, tt.candidate)
	}
	_, err := Newer("1.0.0", "latest")
	assert.Error(t, err)
}

func TestTargetFor(t *testing.T) {
	assert.Equal(t, "linux-x86_64", targetFor("linux", "amd64"))
	assert.Equal(t, "darwin-aarch64", targetFor("darwin", "arm64"))
	assert.Equal(t, "windows-i686", targetFor("windows", "386"))
}

type release struct {
	srv      *httptest.Server
	artifact []byte
	kp       keypair
	version  string
	gotPath  string
}

func newRelease(t *testing.T, version string) *release {
	t.Helper()
	r := &release{artifact: []byte("#!/bin/sh\necho 1.1.0\n"), kp: newKeypair(t), version: version}
	mux := http.NewServeMux()
	mux.HandleFunc("/linux-x86_64/{current}", func(w http.ResponseWriter, req *http.Request) {
		r.gotPath = req.URL.Path
		if r.version == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(Manifest{
			Version: r.version,
			Notes:   "Faster receipts",
			PubDate: "2026-10-01T12:00:00Z",
			Platforms: map[string]Platform{
				"linux-x86_64": {URL: r.srv.URL + "/download", Signature: r.kp.sign(r.artifact, algPrehash)},
			},
		})
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(r.artifact)
	})
	r.srv = httptest.NewServer(mux)
	t.Cleanup(r.srv.Close)
	return r
}

func (r *release) updater(t *testing.T) *Updater {
	exe := filepath.Join(t.TempDir(), "simple-pos")
	require.NoError(t, os.WriteFile(exe, []byte("old"), 0o755))
	return &Updater{
		Endpoint:       r.srv.URL + "/{{target}}/{{current_version}}",
		PublicKey:      r.kp.pub,
		CurrentVersion: "1.0.0",
		Target:         "linux-x86_64",
		Client:         r.srv.Client(),
		Executable:     exe,
	}
}

func TestCheck(t *testing.T) {
	r := newRelease(t, "1.1.0")
	u := r.updater(t)

	upd, err := u.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.Equal(t, "/linux-x86_64/1.0.0", r.gotPath)
	assert.Equal(t, "1.1.0", upd.Version)
	assert.Equal(t, "Faster receipts", upd.Notes)
	assert.Equal(t, 2026, upd.Date.Year())

	r.version = "1.0.0"
	upd, err = u.Check(context.Background())
	require.NoError(t, err)
	assert.Nil(t, upd)

	r.version = ""
	upd, err = u.Check(context.Background())
	require.NoError(t, err)
	assert.Nil(t, upd)

	u.Target = "linux-riscv64"
	r.version = "2.0.0"
	_, err = u.Check(context.Background())
	assert.Error(t, err)
}

func TestCheck_NoEndpoint(t *testing.T) {
	_, err := (&Updater{CurrentVersion: "1.0.0"}).Check(context.Background())
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestPlugin_DownloadAndInstall(t *testing.T) {
	r := newRelease(t, "1.1.0")
	u := r.updater(t)

	host := app.NewHost("test", t.TempDir(), func() {})
	var (
		mu     sync.Mutex
		events []string
	)
	host.Events.Listen(event.All, func(e event.Event) {
		mu.Lock()
		events = append(events, e.Name)
		mu.Unlock()
	})

	p := NewWith(u)
	require.NoError(t, p.Init(context.Background(), host))

	res, err := p.Commands()["check"](context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, res)

	_, err = p.Commands()["download_and_install"](context.Background(), nil)
	require.NoError(t, err)

	got, err := os.ReadFile(u.Executable)
	require.NoError(t, err)
	assert.Equal(t, r.artifact, got)
	old, err := os.ReadFile(u.Executable + ".old")
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, events, EventProgress)
	assert.Equal(t, EventInstalled, events[len(events)-1])
}

func TestPlugin_RejectsBadSignature(t *testing.T) {
	r := newRelease(t, "1.1.0")
	u := r.updater(t)
	u.PublicKey = newKeypair(t).pub

	p := NewWith(u)
	require.NoError(t, p.Init(context.Background(), app.NewHost("test", t.TempDir(), func() {})))

	_, err := p.Commands()["download_and_install"](context.Background(), nil)
	assert.ErrorIs(t, err, ErrKeyMismatch)

	got, err := os.ReadFile(u.Executable)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got), "executable untouched")
}
