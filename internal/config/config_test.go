package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "9090"
ecowitt_api:
  url: "https://api.example.com/v3/device"
  timeout: "10s"
cache:
  max_age: "5m"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

// clearEnv unsets the variables Load reads and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "ECOWITT_API_URL", "CACHE_BACKEND", "MEMCACHED_ADDRS", "STORAGE_PATH", "WIDGET_STORAGE_SECRET"} {
		saved, ok := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if ok {
				os.Setenv(k, saved)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.EcowittAPIURL != "https://api.example.com/v3/device" {
		t.Errorf("EcowittAPIURL = %q", cfg.EcowittAPIURL)
	}
	if cfg.EcowittAPITimeout != 10*time.Second {
		t.Errorf("EcowittAPITimeout = %v, want 10s", cfg.EcowittAPITimeout)
	}
	if cfg.RetryMaxRetries != 3 {
		t.Errorf("RetryMaxRetries = %d, want 3", cfg.RetryMaxRetries)
	}
	wantBackoff := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if !reflect.DeepEqual(cfg.RetryBackoff, wantBackoff) {
		t.Errorf("RetryBackoff = %v, want %v", cfg.RetryBackoff, wantBackoff)
	}
	if cfg.CacheMaxAge != 5*time.Minute || cfg.HistoryWindow != 3*time.Hour {
		t.Errorf("CacheMaxAge = %v HistoryWindow = %v", cfg.CacheMaxAge, cfg.HistoryWindow)
	}
	if cfg.CacheBackend != CacheBackendSecure {
		t.Errorf("CacheBackend = %q, want secure", cfg.CacheBackend)
	}
	if cfg.RefreshInterval != 30*time.Minute {
		t.Errorf("RefreshInterval = %v, want 30m", cfg.RefreshInterval)
	}
	if cfg.StorageSecret != "" {
		t.Errorf("StorageSecret = %q, want empty", cfg.StorageSecret)
	}
	if cfg.Location != time.Local {
		t.Errorf("Location = %v, want Local", cfg.Location)
	}
}

func TestLoadFrom_FullFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
ecowitt_api:
  timeout: "30s"
reliability:
  retry_max_retries: 0
  retry_backoff: ["500ms", "1s"]
  breaker_threshold: 0
  rate_limit_rps: 2
  rate_limit_burst: 4
cache:
  backend: "Memcached"
  memcached:
    addrs: "cache-1:11211,cache-2:11211"
    max_idle_conns: 8
storage:
  path: "/var/lib/wind"
timezone: "Europe/Amsterdam"
refresh:
  interval: "15m"
  widgets: ["12", "13"]
`)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.RetryMaxRetries != 0 {
		t.Errorf("RetryMaxRetries = %d, want explicit 0", cfg.RetryMaxRetries)
	}
	if !reflect.DeepEqual(cfg.RetryBackoff, []time.Duration{500 * time.Millisecond, time.Second}) {
		t.Errorf("RetryBackoff = %v", cfg.RetryBackoff)
	}
	if cfg.BreakerThreshold != 0 {
		t.Errorf("BreakerThreshold = %d, want 0 (disabled)", cfg.BreakerThreshold)
	}
	if cfg.CacheBackend != CacheBackendMemcached || cfg.MemcachedAddrs != "cache-1:11211,cache-2:11211" || cfg.MemcachedMaxIdleConns != 8 {
		t.Errorf("memcached = %q %q %d", cfg.CacheBackend, cfg.MemcachedAddrs, cfg.MemcachedMaxIdleConns)
	}
	if cfg.StoragePath != "/var/lib/wind" {
		t.Errorf("StoragePath = %q", cfg.StoragePath)
	}
	if cfg.Location.String() != "Europe/Amsterdam" {
		t.Errorf("Location = %v", cfg.Location)
	}
	if cfg.RefreshInterval != 15*time.Minute || !reflect.DeepEqual(cfg.Widgets, []string{"12", "13"}) {
		t.Errorf("refresh = %v %v", cfg.RefreshInterval, cfg.Widgets)
	}
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "storage_secret: from-file\n")
	t.Setenv("ECOWITT_API_URL", "http://localhost:9999")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("STORAGE_PATH", "/tmp/wind")
	t.Setenv("WIDGET_STORAGE_SECRET", "from-env")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.EcowittAPIURL != "http://localhost:9999" {
		t.Errorf("EcowittAPIURL = %q", cfg.EcowittAPIURL)
	}
	if cfg.CacheBackend != CacheBackendMemory {
		t.Errorf("CacheBackend = %q", cfg.CacheBackend)
	}
	if cfg.StoragePath != "/tmp/wind" {
		t.Errorf("StoragePath = %q", cfg.StoragePath)
	}
	if cfg.StorageSecret != "from-env" {
		t.Errorf("StorageSecret = %q, want env to win over secrets file", cfg.StorageSecret)
	}
}

func TestLoadFrom_SecretFromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "storage_secret: from-file\n")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.StorageSecret != "from-file" {
		t.Errorf("StorageSecret = %q, want from-file", cfg.StorageSecret)
	}
}

func TestLoadFrom_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
cache:
  max_age: "invalid"
shutdown:
  timeout: "-5s"
`)
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.CacheMaxAge != 5*time.Minute {
		t.Errorf("CacheMaxAge = %v, want default", cfg.CacheMaxAge)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default", cfg.ShutdownTimeout)
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"zero api timeout", "ecowitt_api:\n  timeout: \"0s\"\n", "ecowitt_api.timeout"},
		{"negative retries", "reliability:\n  retry_max_retries: -1\n", "retry_max_retries"},
		{"bad backoff", "reliability:\n  retry_backoff: [\"soon\"]\n", "retry_backoff"},
		{"unknown backend", "cache:\n  backend: \"redis\"\n", "cache.backend"},
		{"bad timezone", "timezone: \"Mars/Olympus\"\n", "timezone"},
		{"short interval", "refresh:\n  interval: \"30s\"\n", "refresh.interval"},
		{"bad yaml", "server: [\n", "parse config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)
			cfg, err := LoadFrom(dir)
			if err == nil {
				t.Fatalf("LoadFrom() = %+v, want error", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFrom_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")
	cfg, err := LoadFrom(t.TempDir())
	if err == nil {
		t.Fatalf("LoadFrom() = %+v, want error", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want message about config file not found", err)
	}
}

// TestLoad_ReadsDotEnv verifies .env in the working directory feeds the env
// overrides.
func TestLoad_ReadsDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WIDGET_STORAGE_SECRET=from-dotenv\nCACHE_BACKEND=memory\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageSecret != "from-dotenv" || cfg.CacheBackend != CacheBackendMemory {
		t.Errorf("StorageSecret = %q CacheBackend = %q, want values from .env", cfg.StorageSecret, cfg.CacheBackend)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Minute},
		{" 90s ", 90 * time.Second},
		{"bogus", time.Minute},
		{"0s", time.Minute},
		{"-1m", time.Minute},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Minute); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
