package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "governor", cfg.Instance.ID)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Remote.Driver)
	assert.Equal(t, 4, cfg.Sync.Workers)
	assert.Equal(t, time.Minute, cfg.Sync.ReconcileEvery)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: node-b
remote:
  driver: postgres
  dsn: postgres://file
sync:
  workers: 2
  base_backoff: 500ms
redis:
  enabled: true
  addresses: ["localhost:6379"]
`)
	t.Setenv("REMOTE_DSN", "postgres://env")
	t.Setenv("REDIS_PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-b", cfg.Instance.ID)
	assert.Equal(t, "postgres://env", cfg.Remote.DSN)
	assert.Equal(t, 2, cfg.Sync.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.BaseBackoff)
	assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addresses)
	assert.Equal(t, "hunter2", cfg.Redis.Password)

	cc := cfg.ToContainerConfig()
	assert.Equal(t, "node-b", cc.Sync.Coordinator.Origin)
	assert.Equal(t, 2, cc.Sync.Coordinator.Workers)
	assert.NoError(t, cc.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"postgres without dsn", func(c *Config) { c.Remote.Driver = "postgres"; c.Remote.DSN = "" }},
		{"unknown driver", func(c *Config) { c.Remote.Driver = "oracle" }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }},
		{"redis without addresses", func(c *Config) { c.Redis.Enabled = true }},
		{"zero workers", func(c *Config) { c.Sync.Workers = 0 }},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }},
		{"bad log level", func(c *Config) { c.Logger.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
