package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheBackendSecure    = "secure"
	CacheBackendMemory    = "memory"
	CacheBackendMemcached = "memcached"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	EcowittAPIURL     string
	EcowittAPITimeout time.Duration

	RetryMaxRetries  int
	RetryBackoff     []time.Duration
	BreakerThreshold int
	BreakerTimeout   time.Duration

	CacheMaxAge   time.Duration
	HistoryWindow time.Duration
	CacheBackend  string // "secure", "memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	StoragePath   string
	StorageSecret string

	Location *time.Location

	Widgets         []string
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	EcowittAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"ecowitt_api"`

	Reliability struct {
		RetryMaxRetries  *int     `yaml:"retry_max_retries"`
		RetryBackoff     []string `yaml:"retry_backoff"`
		BreakerThreshold *int     `yaml:"breaker_threshold"`
		BreakerTimeout   string   `yaml:"breaker_timeout"`
		RateLimitRPS     int      `yaml:"rate_limit_rps"`
		RateLimitBurst   int      `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Cache struct {
		Backend       string `yaml:"backend"`
		MaxAge        string `yaml:"max_age"`
		HistoryWindow string `yaml:"history_window"`
		Memcached     struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Timezone string `yaml:"timezone"`

	Refresh struct {
		Interval string   `yaml:"interval"`
		Timeout  string   `yaml:"timeout"`
		Widgets  []string `yaml:"widgets"`
	} `yaml:"refresh"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	StorageSecret string `yaml:"storage_secret"`
}

// Load reads .env (if present) into the environment, then configuration from
// config/{ENV_NAME}.yaml (default dev) under the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads config/{ENV_NAME}.yaml and config/secrets.yaml under root.
// The storage secret comes from WIDGET_STORAGE_SECRET or the secrets file;
// without one, credentials are stored unencrypted.
func LoadFrom(root string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(root, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.EcowittAPIURL = strings.TrimSpace(os.Getenv("ECOWITT_API_URL"))
	if cfg.EcowittAPIURL == "" {
		cfg.EcowittAPIURL = fc.EcowittAPI.URL
	}
	if cfg.EcowittAPIURL == "" {
		cfg.EcowittAPIURL = "https://api.ecowitt.net/api/v3/device"
	}
	cfg.EcowittAPITimeout = parseDurationOrZero(fc.EcowittAPI.Timeout, 30*time.Second)

	cfg.RetryMaxRetries = 3
	if fc.Reliability.RetryMaxRetries != nil {
		cfg.RetryMaxRetries = *fc.Reliability.RetryMaxRetries
	}
	cfg.RetryBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(fc.Reliability.RetryBackoff) > 0 {
		backoff := make([]time.Duration, 0, len(fc.Reliability.RetryBackoff))
		for _, s := range fc.Reliability.RetryBackoff {
			d, err := time.ParseDuration(strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("reliability.retry_backoff: %w", err)
			}
			backoff = append(backoff, d)
		}
		cfg.RetryBackoff = backoff
	}
	cfg.BreakerThreshold = 5
	if fc.Reliability.BreakerThreshold != nil {
		cfg.BreakerThreshold = *fc.Reliability.BreakerThreshold
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, time.Minute)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 1
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 5
	}

	cfg.CacheMaxAge = parseDuration(fc.Cache.MaxAge, 5*time.Minute)
	cfg.HistoryWindow = parseDuration(fc.Cache.HistoryWindow, 3*time.Hour)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = CacheBackendSecure
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.StoragePath = strings.TrimSpace(os.Getenv("STORAGE_PATH"))
	if cfg.StoragePath == "" {
		cfg.StoragePath = fc.Storage.Path
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = filepath.Join("data", "badger")
	}
	cfg.StorageSecret = os.Getenv("WIDGET_STORAGE_SECRET")
	if cfg.StorageSecret == "" {
		secret, err := readSecrets(filepath.Join(root, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.StorageSecret = secret
	}

	cfg.Location = time.Local
	if tz := strings.TrimSpace(fc.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
		cfg.Location = loc
	}

	cfg.Widgets = fc.Refresh.Widgets
	cfg.RefreshInterval = parseDuration(fc.Refresh.Interval, 30*time.Minute)
	cfg.RefreshTimeout = parseDuration(fc.Refresh.Timeout, 5*time.Minute)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return sec.StorageSecret, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.EcowittAPITimeout <= 0 {
		return fmt.Errorf("ecowitt_api.timeout must be positive")
	}
	if cfg.RetryMaxRetries < 0 {
		return fmt.Errorf("reliability.retry_max_retries must not be negative")
	}
	for _, d := range cfg.RetryBackoff {
		if d < 0 {
			return fmt.Errorf("reliability.retry_backoff entries must not be negative")
		}
	}
	if cfg.BreakerThreshold < 0 {
		return fmt.Errorf("reliability.breaker_threshold must not be negative")
	}
	switch cfg.CacheBackend {
	case CacheBackendSecure, CacheBackendMemory, CacheBackendMemcached:
		// valid
	default:
		return fmt.Errorf("cache.backend must be secure, memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.RefreshInterval < time.Minute {
		return fmt.Errorf("refresh.interval must be at least 1m")
	}
	return nil
}
