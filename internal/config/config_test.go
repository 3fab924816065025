package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "companion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("COMPANION_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/companion.db", cfg.Database.Path)
	assert.Equal(t, 10, cfg.Chat.ContextWindow)
	assert.Equal(t, 10*time.Second, time.Duration(cfg.Chat.WebhookTimeout))
	assert.Equal(t, "gpt-4o-mini", cfg.Fallback.Model)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
database:
  path: /tmp/test.db
chat:
  context_window: 20
  webhook_timeout: 3s
log:
  level: debug
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Server.ReadTimeout))
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 20, cfg.Chat.ContextWindow)
	assert.Equal(t, 3*time.Second, time.Duration(cfg.Chat.WebhookTimeout))
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Server.WriteTimeout))
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "server:\n  read_timeout: banana\n")
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("COMPANION_PORT", "7070")
	t.Setenv("COMPANION_DB_PATH", "/tmp/env.db")
	t.Setenv("COMPANION_WEBHOOK_TIMEOUT", "2s")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("COMPANION_LOG_LEVEL", "warn")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port, "env beats file")
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, time.Duration(cfg.Chat.WebhookTimeout))
	assert.Equal(t, "sk-test", cfg.Fallback.APIKey)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"zero context window", func(c *Config) { c.Chat.ContextWindow = 0 }},
		{"zero webhook timeout", func(c *Config) { c.Chat.WebhookTimeout = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newDefaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}

	assert.NoError(t, newDefaults().validate())
}
