package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/simplepos/shell/config"
	"github.com/simplepos/shell/internal/server"
	"github.com/simplepos/shell/pkg/auth"
	"github.com/simplepos/shell/pkg/logger"
)

// TokenFile is written to the data directory when the bridge runs with a
// generated secret. It holds a token for the webview and is removed on exit.
const TokenFile = "bridge.token"

// EnsureBridgeSecret makes sure the bridge never runs unauthenticated. When
// BRIDGE_SECRET is unset it installs a random secret for this run and writes
// a webview token to dataDir/TokenFile. It returns the file path, or "" when
// a secret was configured.
func EnsureBridgeSecret(dataDir string) (string, error) {
	if config.BridgeSecret() != "" {
		return "", nil
	}
	config.Set("BRIDGE_SECRET", rand.Text())

	token, err := auth.FromConfig().GenerateToken("webview")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", fmt.Errorf("app: bridge token: %w", err)
	}
	path := filepath.Join(dataDir, TokenFile)
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return "", fmt.Errorf("app: bridge token: %w", err)
	}
	return path, nil
}

// serve boots the application and serves the bridge until a signal arrives
// or a plugin calls Host.Exit. Boot failures are fatal.
func (a *Application) serve(ctx context.Context) (int, error) {
	rt, err := a.Boot(ctx)
	if err != nil {
		return 1, err
	}

	tokenPath, err := EnsureBridgeSecret(rt.Host.DataDir)
	if err != nil {
		_ = rt.Close()
		return 1, err
	}
	removeToken := func() {}
	if tokenPath != "" {
		logger.Target("app").Info("app: generated bridge secret", "token_file", tokenPath)
		// Removed before a relaunch, which writes its own.
		removeToken = func() { _ = os.Remove(tokenPath) }
	}

	srv, err := server.Listen(config.BridgeAddr(), rt.Handler())
	if err != nil {
		removeToken()
		_ = rt.Close()
		return 1, err
	}

	rt.Start()
	rt.Host.Events.Emit(EventReady, map[string]string{"app": a.name, "bridge": srv.Addr()})

	serveErr := srv.Serve(rt.Context())
	removeToken()
	if err := rt.Close(); err != nil {
		logger.Warn("app: shutdown", "error", err)
	}
	if serveErr != nil {
		return 1, serveErr
	}

	if rt.Host.restartRequested() {
		logger.Info("app: restarting")
		if err := rt.Host.relaunch(); err != nil {
			return 1, err
		}
	}
	return rt.Host.ExitCode(), nil
}
