package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfig returns the platform-aware default layout and settings.
func DefaultConfig() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("%w: resolve home directory: %v", ErrConfiguration, err)
	}

	var base string
	switch runtime.GOOS {
	case "darwin":
		base = filepath.Join(home, "Library", "Application Support", "vfdriver")
	default:
		// Respect XDG_CONFIG_HOME if set
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			base = filepath.Join(xdgConfig, "vfdriver")
		} else {
			base = filepath.Join(home, ".config", "vfdriver")
		}
	}

	return WithBaseDir(base), nil
}

// WithBaseDir returns the standard layout rooted at base.
func WithBaseDir(base string) *Config {
	return &Config{
		BaseDir:      base,
		ConfigDir:    filepath.Join(base, "domains"),
		StateDir:     filepath.Join(base, "state"),
		NVRAMDir:     filepath.Join(base, "nvram"),
		LogLevel:     "info",
		OpTimeoutSec: 30,
	}
}

// EnsureDirectories creates the configuration, state, and nvram directories.
// Idempotent; any failure is a configuration error fatal to driver startup.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.BaseDir, c.ConfigDir, c.StateDir, c.NVRAMDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: create %s: %v", ErrConfiguration, dir, err)
		}
	}
	return nil
}

// DomainConfigPath returns where a domain's definition is persisted.
func (c *Config) DomainConfigPath(name string) string {
	return filepath.Join(c.ConfigDir, name+".xml")
}

// NVRAMPath returns a domain's firmware variable store path.
func (c *Config) NVRAMPath(name string) string {
	return filepath.Join(c.NVRAMDir, name+".fd")
}
