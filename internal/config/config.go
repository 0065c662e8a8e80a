// Package config loads client settings from YAML and LEND_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/lendclient/internal/storage"
	"gopkg.in/yaml.v3"
)

// Storage kinds.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageSealed   = "sealed"
	StoragePostgres = "postgres"
)

// Notify tunes the notification socket.
type Notify struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

// Config is the client configuration.
type Config struct {
	APIURL      string        `yaml:"api_url"`
	WSURL       string        `yaml:"ws_url"`
	Storage     string        `yaml:"storage"`
	StorageDir  string        `yaml:"storage_dir"`
	StorageDSN  string        `yaml:"storage_dsn"`
	Passphrase  string        `yaml:"passphrase"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	LogLevel    string        `yaml:"log_level"`
	LogDev      bool          `yaml:"log_dev"`
	Notify      Notify        `yaml:"notify"`
}

// Default returns a configuration pointing at a local stub backend.
func Default() *Config {
	return &Config{
		APIURL:      "http://localhost:8000",
		Storage:     StorageFile,
		StorageDir:  storage.DefaultDir(),
		HTTPTimeout: 30 * time.Second,
		LogLevel:    "warn",
		Notify:      Notify{MaxAttempts: 5, Interval: 3 * time.Second},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/lendclient/config.yaml.
func DefaultPath() string { return filepath.Join(storage.DefaultDir(), "config.yaml") }

// Load reads path (or DefaultPath when empty), then applies env overrides
// and validates. A missing default file is not an error.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if getenv != nil {
		if err := cfg.ApplyEnv(getenv); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from LEND_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("LEND_API_URL", &c.APIURL)
	str("LEND_WS_URL", &c.WSURL)
	str("LEND_STORAGE", &c.Storage)
	str("LEND_STORAGE_DIR", &c.StorageDir)
	str("LEND_STORAGE_DSN", &c.StorageDSN)
	str("LEND_PASSPHRASE", &c.Passphrase)
	str("LEND_LOG_LEVEL", &c.LogLevel)
	if v := getenv("LEND_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LEND_HTTP_TIMEOUT: %w", err)
		}
		c.HTTPTimeout = d
	}
	if v := getenv("LEND_LOG_DEV"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LEND_LOG_DEV: %w", err)
		}
		c.LogDev = b
	}
	return nil
}

// WebSocketURL returns WSURL, or the API URL with a ws/wss scheme.
func (c *Config) WebSocketURL() string {
	if c.WSURL != "" {
		return c.WSURL
	}
	switch {
	case strings.HasPrefix(c.APIURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.APIURL, "https://")
	case strings.HasPrefix(c.APIURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.APIURL, "http://")
	}
	return c.APIURL
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if err := absURL("api_url", c.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := absURL("ws_url", c.WebSocketURL(), "ws", "wss"); err != nil {
		return err
	}
	switch c.Storage {
	case StorageMemory, StorageFile:
	case StorageSealed:
		if c.Passphrase == "" {
			return fmt.Errorf("storage %q needs a passphrase (LEND_PASSPHRASE)", c.Storage)
		}
	case StoragePostgres:
		if c.StorageDSN == "" {
			return fmt.Errorf("storage %q needs storage_dsn", c.Storage)
		}
	default:
		return fmt.Errorf("unknown storage %q (want memory, file, sealed or postgres)", c.Storage)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.Notify.MaxAttempts < 0 {
		return fmt.Errorf("notify.max_attempts must be non-negative")
	}
	if c.Notify.Interval <= 0 {
		return fmt.Errorf("notify.interval must be positive")
	}
	return nil
}

func absURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q must be an absolute %s URL", field, raw, strings.Join(schemes, "/"))
}
