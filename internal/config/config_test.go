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
	cfg := Load()
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 300*time.Millisecond, cfg.StableFor())
	assert.Equal(t, 30*time.Second, cfg.MaxPostLoadDelay())
	assert.Equal(t, time.Minute, cfg.ShutdownGrace())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CONCURRENCY", "8")
	t.Setenv("DATA_DIR", "/tmp/rw")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, filepath.Join("/tmp/rw", "inbox"), cfg.InboxDir())
	assert.Equal(t, filepath.Join("/tmp/rw", "processing"), cfg.ProcessingDir())
	assert.Equal(t, filepath.Join("/tmp/rw", "output"), cfg.OutputDir())
}

func TestLoadYAMLFileWithEnvWinning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: \":7000\"\nconcurrency: 4\n"), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CONCURRENCY", "16")

	cfg := Load()
	assert.Equal(t, ":7000", cfg.HTTPAddr, "file overrides default")
	assert.Equal(t, 16, cfg.Concurrency, "environment overrides file")
}

func TestLoadBadIntFallsBack(t *testing.T) {
	t.Setenv("CONCURRENCY", "lots")
	cfg := Load()
	assert.Equal(t, 2, cfg.Concurrency)
}

func TestLoadConcurrencyFloor(t *testing.T) {
	t.Setenv("CONCURRENCY", "0")
	cfg := Load()
	assert.Equal(t, 1, cfg.Concurrency)
}
