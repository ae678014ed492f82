package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 300, cfg.LLM.MaxTokens)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.LLM.MaxConcurrency)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.ScanInterval)
	assert.Equal(t, time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, 100, cfg.Scheduler.ScanLimit)
	assert.Equal(t, 200, cfg.Scheduler.BootstrapLimit)
	assert.Equal(t, 1000, cfg.Scheduler.MaxQueueSize)
	assert.Equal(t, 5, cfg.Scheduler.MaxFailures)
	assert.Equal(t, "development", cfg.Security.Mode)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MIRA_PORT", "9090")
	t.Setenv("MIRA_STORAGE_ENGINE", "postgres")
	t.Setenv("MIRA_LLM_TIMEOUT", "30s")
	t.Setenv("MIRA_LLM_TEMPERATURE", "0.7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
}

func TestLoadBadEnvFallsBack(t *testing.T) {
	t.Setenv("MIRA_PORT", "not-a-number")
	t.Setenv("MIRA_LLM_TIMEOUT", "soonish")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mira.yaml")
	data := []byte(`
server:
  port: 8181
llm:
  model: gpt-4o
scheduler:
  bootstrap_limit: 50
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 50, cfg.Scheduler.BootstrapLimit)
	// Untouched fields keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 1000, cfg.Scheduler.MaxQueueSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/mira.yaml")
	assert.Error(t, err)
}
