package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppEnv          = "local"
	defaultAppProfile      = "native"
	defaultBridgeAddr      = "127.0.0.1:1421"
	defaultNativeDatabase  = "sqlite:simple-pos.db"
	defaultBistroDatabase  = "sqlite:bistro.db"
	defaultLogLevel        = "info"
	defaultLogTargets      = "tao=error"
	defaultLogMaxFileSize  = 10_000_000
	defaultLogRotation     = "keep_all"
	defaultPrinterTimeout  = 5 * time.Second
	defaultStorageDisk     = "local"
	defaultBridgeTokenTTL  = 24 * time.Hour
	defaultUpdaterTimeout  = 30 * time.Second
	defaultWorkerPoolSize  = 16
	defaultBridgeRateLimit = 1200
	defaultConfigFile      = "config/app.json"
	defaultDotEnvFile      = ".env"
	defaultDataDirName     = "simplepos"
	defaultStorageRootName = "storage"
)

var (
	loadOnce sync.Once
	loadErr  error

	mu     sync.RWMutex
	values = defaultValues()
)

// Load reads config/app.json and .env once. Process environment variables
// win over both files.
func Load() error {
	loadOnce.Do(func() {
		loadErr = loadFromFiles(defaultConfigFile, defaultDotEnvFile)
	})
	return loadErr
}

func defaultValues() map[string]string {
	return map[string]string{
		"APP_ENV":           defaultAppEnv,
		"APP_PROFILE":       defaultAppProfile,
		"BRIDGE_ADDR":       defaultBridgeAddr,
		"BRIDGE_SECRET":     "",
		"DATABASE_URL":      "",
		"LOG_LEVEL":         defaultLogLevel,
		"LOG_TARGETS":       defaultLogTargets,
		"LOG_ROTATION":      defaultLogRotation,
		"STORAGE_DISK":      defaultStorageDisk,
		"UPDATER_ENDPOINT":  "",
		"UPDATER_PUBKEY":    "",
		"SHELL_ALLOW":       "",
		"LOG_MONGO_URI":     "",
		"BACKUP_INTERVAL":   "",
		"PRINTER_TIMEOUT":   "",
		"WORKER_POOL_SIZE":  "",
		"LOG_MAX_FILE_SIZE": "",
	}
}

// ── Application ──────────────────────────────────────────────────────────────

func AppEnv() string { _ = Load(); return get("APP_ENV", defaultAppEnv) }

// AppProfile selects which database and migration set a generic entry point
// boots: "native" (simple-pos.db) or "bistro" (bistro.db).
func AppProfile() string {
	_ = Load()
	switch p := strings.ToLower(get("APP_PROFILE", defaultAppProfile)); p {
	case "native", "bistro":
		return p
	default:
		return defaultAppProfile
	}
}

func IsProduction() bool {
	switch AppEnv() {
	case "production", "prod":
		return true
	}
	return false
}

// DataDir is where the database file, logs and staged updates live.
func DataDir() string {
	_ = Load()
	if dir := get("DATA_DIR", ""); dir != "" {
		return dir
	}
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, defaultDataDirName)
	}
	return "."
}

// DatabaseURL returns the database for the active profile unless
// DATABASE_URL overrides it.
func DatabaseURL() string {
	_ = Load()
	if override := get("DATABASE_URL", ""); override != "" {
		return override
	}
	if AppProfile() == "bistro" {
		return defaultBistroDatabase
	}
	return defaultNativeDatabase
}

func WorkerPoolSize() int { _ = Load(); return getInt("WORKER_POOL_SIZE", defaultWorkerPoolSize) }

// ── Bridge ───────────────────────────────────────────────────────────────────

func BridgeAddr() string { _ = Load(); return get("BRIDGE_ADDR", defaultBridgeAddr) }

// BridgeSecret signs bridge tokens. When empty, serve generates one per run
// and writes a webview token to the data directory.
func BridgeSecret() string { _ = Load(); return get("BRIDGE_SECRET", "") }

func BridgeTokenTTL() time.Duration {
	_ = Load()
	return getDuration("BRIDGE_TOKEN_TTL", defaultBridgeTokenTTL)
}

// BridgeRateLimit is the number of bridge requests a client may make per
// minute. Zero disables the limiter.
func BridgeRateLimit() int { _ = Load(); return getInt("BRIDGE_RATE_LIMIT", defaultBridgeRateLimit) }

// BridgeOrigins lists the webview origins allowed to call the bridge.
func BridgeOrigins() []string {
	_ = Load()
	return getList("BRIDGE_ORIGINS", []string{"tauri://localhost", "http://localhost:4200", "http://127.0.0.1:4200"})
}

// ── Logging ──────────────────────────────────────────────────────────────────

func LogDir() string {
	_ = Load()
	if dir := get("LOG_DIR", ""); dir != "" {
		return dir
	}
	return filepath.Join(DataDir(), "logs")
}

func LogLevel() string { _ = Load(); return strings.ToLower(get("LOG_LEVEL", defaultLogLevel)) }

// LogTargets returns per-target level overrides, parsed from
// "target=level,target=level".
func LogTargets() map[string]string {
	_ = Load()
	out := map[string]string{}
	for _, pair := range getList("LOG_TARGETS", []string{defaultLogTargets}) {
		name, level, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = strings.ToLower(strings.TrimSpace(level))
	}
	return out
}

// LogMaxFileSize is the rotation threshold in bytes. The file sink rotates
// in whole megabytes, so the value is rounded up: the default 10000000
// becomes 10 MiB (10485760 bytes).
func LogMaxFileSize() int64 {
	_ = Load()
	return int64(getInt("LOG_MAX_FILE_SIZE", defaultLogMaxFileSize))
}

// LogRotation is "keep_all" (never delete rotated files) or "keep_one".
func LogRotation() string {
	_ = Load()
	return strings.ToLower(get("LOG_ROTATION", defaultLogRotation))
}

func LogMongoURI() string        { _ = Load(); return get("LOG_MONGO_URI", "") }
func LogMongoDatabase() string   { _ = Load(); return get("LOG_MONGO_DB", "simplepos") }
func LogMongoCollection() string { _ = Load(); return get("LOG_MONGO_COLLECTION", "logs") }

// ── Printer ──────────────────────────────────────────────────────────────────

func PrinterConnectTimeout() time.Duration {
	_ = Load()
	return getDuration("PRINTER_TIMEOUT", defaultPrinterTimeout)
}

// PrinterReceipt and PrinterKitchen are the descriptors the CLI falls back to.
func PrinterReceipt() string { _ = Load(); return get("PRINTER_RECEIPT", "tcp:127.0.0.1:9100") }
func PrinterKitchen() string { _ = Load(); return get("PRINTER_KITCHEN", "tcp:127.0.0.1:9100") }

// ── Plugins ──────────────────────────────────────────────────────────────────

func UpdaterEndpoint() string { _ = Load(); return get("UPDATER_ENDPOINT", "") }
func UpdaterPubkey() string   { _ = Load(); return get("UPDATER_PUBKEY", "") }

func UpdaterTimeout() time.Duration {
	_ = Load()
	return getDuration("UPDATER_TIMEOUT", defaultUpdaterTimeout)
}

// ShellAllow lists the programs the shell plugin may execute.
func ShellAllow() []string { _ = Load(); return getList("SHELL_ALLOW", nil) }

// ── Storage / backups ────────────────────────────────────────────────────────

func StorageDisk() string { _ = Load(); return get("STORAGE_DISK", defaultStorageDisk) }

func StorageLocalRoot() string {
	_ = Load()
	if root := get("STORAGE_LOCAL_ROOT", ""); root != "" {
		return root
	}
	return filepath.Join(DataDir(), defaultStorageRootName)
}

func StorageS3Bucket() string   { _ = Load(); return get("S3_BUCKET", "") }
func StorageS3Region() string   { _ = Load(); return get("S3_REGION", "us-east-1") }
func StorageS3Key() string      { _ = Load(); return get("S3_KEY", "") }
func StorageS3Secret() string   { _ = Load(); return get("S3_SECRET", "") }
func StorageS3Endpoint() string { _ = Load(); return get("S3_ENDPOINT", "") }
func StorageS3URL() string      { _ = Load(); return get("S3_URL", "") }

// BackupKeep is how many scheduled snapshots are retained.
func BackupKeep() int { _ = Load(); return getInt("BACKUP_KEEP", 14) }

// BackupInterval is zero when scheduled backups are disabled.
func BackupInterval() time.Duration { _ = Load(); return getDuration("BACKUP_INTERVAL", 0) }

func BackupPassword() string { _ = Load(); return get("BACKUP_PASSWORD", "") }

// ── Loading ──────────────────────────────────────────────────────────────────

func loadFromFiles(configPath, envPath string) error {
	loaded := defaultValues()

	if err := mergeJSONConfig(configPath, loaded); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := mergeDotEnv(envPath, loaded); err != nil && !os.IsNotExist(err) {
		return err
	}

	mergeProcessEnv(loaded)

	mu.Lock()
	values = loaded
	mu.Unlock()

	return nil
}

func mergeJSONConfig(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var raw map[string]any
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	for key, val := range raw {
		k := strings.ToUpper(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		switch v := val.(type) {
		case string:
			out[k] = strings.TrimSpace(v)
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(v)
		}
	}

	return nil
}

func mergeDotEnv(path string, out map[string]string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for key, value := range env {
		k := strings.ToUpper(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(value)
	}
	return nil
}

// mergeProcessEnv overlays every known key plus anything already present in
// the loaded map with the process environment.
func mergeProcessEnv(out map[string]string) {
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, known := out[key]; known || isConfigKey(key) {
			out[key] = strings.TrimSpace(value)
		}
	}
}

var configPrefixes = []string{"APP_", "BRIDGE_", "DATA_", "DATABASE_", "LOG_", "PRINTER_", "UPDATER_", "SHELL_", "STORAGE_", "S3_", "BACKUP_", "WORKER_"}

func isConfigKey(key string) bool {
	for _, p := range configPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func get(key, fallback string) string {
	mu.RLock()
	defer mu.RUnlock()

	if value := strings.TrimSpace(values[key]); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := get(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// getDuration accepts Go durations ("5s") or plain seconds ("5").
func getDuration(key string, fallback time.Duration) time.Duration {
	raw := get(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	raw := get(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Get reads any config key by name with an optional fallback.
func Get(key, fallback string) string {
	_ = Load()
	return get(key, fallback)
}

// Set overrides a single key at runtime. Intended for tests and for plugins
// that adjust configuration while booting.
func Set(key, value string) {
	_ = Load()
	mu.Lock()
	defer mu.Unlock()
	values[strings.ToUpper(key)] = value
}
