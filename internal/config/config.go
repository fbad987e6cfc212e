// Package config provides driver configuration: the on-disk layout and the
// tunables loaded from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfiguration marks directory resolution or creation failures. These
// are fatal to driver startup.
var ErrConfiguration = errors.New("config: configuration error")

// Config holds the driver's directory layout and settings. Immutable after
// the driver's InitConfiguration.
type Config struct {
	// BaseDir is the root of the driver's on-disk layout.
	BaseDir string `mapstructure:"base_dir"`

	// ConfigDir holds persisted domain definitions.
	ConfigDir string `mapstructure:"config_dir"`

	// StateDir holds runtime private-data placeholders.
	StateDir string `mapstructure:"state_dir"`

	// NVRAMDir holds per-domain firmware variable stores.
	NVRAMDir string `mapstructure:"nvram_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// OpTimeoutSec bounds how long lifecycle operations wait for the host
	// engine to confirm.
	OpTimeoutSec int `mapstructure:"op_timeout_sec"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	defaults, err := DefaultConfig()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("base_dir", defaults.BaseDir)
	v.SetDefault("config_dir", defaults.ConfigDir)
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("nvram_dir", defaults.NVRAMDir)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("op_timeout_sec", defaults.OpTimeoutSec)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaults.BaseDir)

	// Environment variable support: VFDRIVER_BASE_DIR, VFDRIVER_LOG_LEVEL, etc.
	v.SetEnvPrefix("VFDRIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional - not an error if missing
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config: %v", ErrConfiguration, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

// OpTimeout returns the engine confirmation timeout as a duration.
func (c *Config) OpTimeout() time.Duration {
	if c.OpTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.OpTimeoutSec) * time.Second
}
