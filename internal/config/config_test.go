package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
api_url: https://lend.example.com
storage: sealed
passphrase: from-file
http_timeout: 5s
notify:
  max_attempts: 2
  interval: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path, env(map[string]string{"LEND_PASSPHRASE": "from-env", "LEND_LOG_LEVEL": "debug"}))
	require.NoError(t, err)
	require.Equal(t, "https://lend.example.com", cfg.APIURL)
	require.Equal(t, "wss://lend.example.com", cfg.WebSocketURL())
	require.Equal(t, "from-env", cfg.Passphrase)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	require.Equal(t, Notify{MaxAttempts: 2, Interval: 500 * time.Millisecond}, cfg.Notify)
}

func TestLoad_MissingFiles(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8000", cfg.WebSocketURL())

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err, "explicit path must exist")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"unknown storage":  func(c *Config) { c.Storage = "s3" },
		"empty api":        func(c *Config) { c.APIURL = "" },
		"relative api":     func(c *Config) { c.APIURL = "localhost:8000" },
		"bad ws scheme":    func(c *Config) { c.WSURL = "http://x" },
		"sealed no pass":   func(c *Config) { c.Storage = StorageSealed },
		"postgres no dsn":  func(c *Config) { c.Storage = StoragePostgres },
		"zero timeout":     func(c *Config) { c.HTTPTimeout = 0 },
		"negative retries": func(c *Config) { c.Notify.MaxAttempts = -1 },
	}
	for name, mutate := range cases {
		c := Default()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: want error", name)
		}
	}
	require.NoError(t, Default().Validate())
}

func TestApplyEnv_BadValues(t *testing.T) {
	t.Parallel()

	require.Error(t, Default().ApplyEnv(env(map[string]string{"LEND_HTTP_TIMEOUT": "soon"})))
	require.Error(t, Default().ApplyEnv(env(map[string]string{"LEND_LOG_DEV": "maybe"})))
	c := Default()
	require.NoError(t, c.ApplyEnv(env(map[string]string{"LEND_STORAGE": "memory", "LEND_LOG_DEV": "true"})))
	require.Equal(t, StorageMemory, c.Storage)
	require.True(t, c.LogDev)
}
