package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFiles(t *testing.T, jsonBody, envBody string) {
	t.Helper()
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "app.json")
	envPath := filepath.Join(dir, ".env")
	if jsonBody != "" {
		require.NoError(t, os.WriteFile(jsonPath, []byte(jsonBody), 0o600))
	}
	if envBody != "" {
		require.NoError(t, os.WriteFile(envPath, []byte(envBody), 0o600))
	}
	_ = Load()
	require.NoError(t, loadFromFiles(jsonPath, envPath))
	t.Cleanup(func() { _ = loadFromFiles("", "") })
}

func TestDefaults(t *testing.T) {
	withFiles(t, "", "")

	assert.Equal(t, "native", AppProfile())
	assert.Equal(t, "sqlite:simple-pos.db", DatabaseURL())
	assert.Equal(t, "127.0.0.1:1421", BridgeAddr())
	assert.Equal(t, "info", LogLevel())
	assert.Equal(t, map[string]string{"tao": "error"}, LogTargets())
	assert.Equal(t, int64(10_000_000), LogMaxFileSize())
	assert.Equal(t, "keep_all", LogRotation())
	assert.Equal(t, 5*time.Second, PrinterConnectTimeout())
	assert.Equal(t, time.Duration(0), BackupInterval())
	assert.Equal(t, 16, WorkerPoolSize())
}

func TestLayering(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	withFiles(t,
		`{"app_profile": "bistro", "log_level": "debug", "printer_timeout": 2, "shell_allow": "echo, ls"}`,
		"LOG_TARGETS=tao=error,sql=debug\nBACKUP_INTERVAL=1h\n",
	)

	assert.Equal(t, "bistro", AppProfile())
	assert.Equal(t, "sqlite:bistro.db", DatabaseURL())
	assert.Equal(t, "warn", LogLevel(), "process env wins over files")
	assert.Equal(t, 2*time.Second, PrinterConnectTimeout())
	assert.Equal(t, []string{"echo", "ls"}, ShellAllow())
	assert.Equal(t, map[string]string{"tao": "error", "sql": "debug"}, LogTargets())
	assert.Equal(t, time.Hour, BackupInterval())
}

func TestDatabaseURLOverride(t *testing.T) {
	withFiles(t, "", "DATABASE_URL=sqlite::memory:\n")
	assert.Equal(t, "sqlite::memory:", DatabaseURL())
}

func TestUnknownProfileFallsBack(t *testing.T) {
	withFiles(t, `{"APP_PROFILE": "kiosk"}`, "")
	assert.Equal(t, "native", AppProfile())
}

func TestSetAndGet(t *testing.T) {
	withFiles(t, "", "")
	Set("printer_receipt", "tcp:10.0.0.5:9100")
	assert.Equal(t, "tcp:10.0.0.5:9100", PrinterReceipt())
	assert.Equal(t, "fallback", Get("NOT_SET_ANYWHERE", "fallback"))
}
