package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0.0.0:3000", cfg.ListenAddr)
	assert.Equal(t, "0.0.0.0:3001", cfg.AdminAddr)
	assert.Equal(t, 1000, cfg.AdmissionLimit)
	assert.Equal(t, 3, cfg.BreakerFailureThreshold)
	assert.Equal(t, int64(10*1024*1024*1024), cfg.CacheSizeBytes())
}

func TestLoadFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("EDGERUNNER_NODE_ID", "node-7")
	t.Setenv("EDGERUNNER_ADMISSION_LIMIT", "500")
	t.Setenv("EDGERUNNER_IDLE_TIMEOUT_SECS", "60")

	LoadFromEnv(cfg)

	assert.Equal(t, "node-7", cfg.NodeID)
	assert.Equal(t, 500, cfg.AdmissionLimit)
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: yaml-node\nadmission_limit: 42\n"), 0o644))

	cfg := Default()
	require.NoError(t, LoadFromFile(cfg, path))

	assert.Equal(t, "yaml-node", cfg.NodeID)
	assert.Equal(t, 42, cfg.AdmissionLimit)
}

func TestLoadFromFileMissingIsNotError(t *testing.T) {
	cfg := Default()
	require.NoError(t, LoadFromFile(cfg, "/nonexistent/path/config.yaml"))
	assert.Equal(t, Default().NodeID, cfg.NodeID)
}

func TestAsMutableApplyMutable(t *testing.T) {
	cfg := Default()
	m := cfg.AsMutable()
	m.AdmissionLimit = 10
	m.LogLevel = "debug"

	cfg.ApplyMutable(m)

	assert.Equal(t, 10, cfg.AdmissionLimit)
	assert.Equal(t, "debug", cfg.LogLevel)
}
