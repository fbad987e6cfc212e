package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/vfdriver/internal/config"
)

func TestWithBaseDirLayout(t *testing.T) {
	cfg := config.WithBaseDir("/srv/vfdriver")

	assert.Equal(t, "/srv/vfdriver", cfg.BaseDir)
	assert.Equal(t, filepath.Join("/srv/vfdriver", "domains"), cfg.ConfigDir)
	assert.Equal(t, filepath.Join("/srv/vfdriver", "state"), cfg.StateDir)
	assert.Equal(t, filepath.Join("/srv/vfdriver", "nvram"), cfg.NVRAMDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30, cfg.OpTimeoutSec)
}

func TestEnsureDirectories(t *testing.T) {
	cfg := config.WithBaseDir(filepath.Join(t.TempDir(), "vfdriver"))
	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{cfg.BaseDir, cfg.ConfigDir, cfg.StateDir, cfg.NVRAMDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir(), "%s should be a directory", dir)
	}

	// Idempotent.
	require.NoError(t, cfg.EnsureDirectories())
}

func TestEnsureDirectoriesFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	cfg := config.WithBaseDir(filepath.Join(blocker, "base"))
	err := cfg.EnsureDirectories()
	require.ErrorIs(t, err, config.ErrConfiguration)
}

func TestOpTimeout(t *testing.T) {
	cfg := &config.Config{OpTimeoutSec: 5}
	assert.Equal(t, 5*time.Second, cfg.OpTimeout())

	// Zero and negative fall back to the default.
	assert.Equal(t, 30*time.Second, (&config.Config{}).OpTimeout())
	assert.Equal(t, 30*time.Second, (&config.Config{OpTimeoutSec: -1}).OpTimeout())
}

func TestDomainPaths(t *testing.T) {
	cfg := config.WithBaseDir("/srv/vfdriver")
	assert.Equal(t, "/srv/vfdriver/domains/alpha.xml", cfg.DomainConfigPath("alpha"))
	assert.Equal(t, "/srv/vfdriver/nvram/alpha.fd", cfg.NVRAMPath("alpha"))
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("VFDRIVER_LOG_LEVEL", "debug")
	t.Setenv("VFDRIVER_OP_TIMEOUT_SEC", "7")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7, cfg.OpTimeoutSec)
	assert.NotEmpty(t, cfg.BaseDir)
}
