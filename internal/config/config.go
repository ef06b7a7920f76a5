// Package config loads gitdir CLI settings from flags, GITDIR_* environment
// variables and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zjrosen/gitdir/internal/log"
)

// Config is the complete CLI configuration.
//
// Sources, highest precedence first:
//  1. Command-line flags that were set explicitly
//  2. Environment variables (GITDIR_*, "." replaced by "_", e.g. GITDIR_LOG_LEVEL)
//  3. Configuration file ($XDG_CONFIG_HOME/gitdir/config.yaml or --config)
//  4. Defaults
type Config struct {
	// Roam searches ancestor directories for the metadata directory.
	Roam bool `mapstructure:"roam"`

	// Common resolves linked worktrees to their common directory.
	Common bool `mapstructure:"common"`

	// Format selects the result encoding: text, json, yaml or table.
	Format string `mapstructure:"format" validate:"required,oneof=text json yaml table"`

	Log       LogConfig       `mapstructure:"log"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig controls debug logging.
type LogConfig struct {
	// Level is the minimum level written: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`

	// File is the log destination. Empty disables logging unless Debug is
	// set; "-" writes to stderr.
	File string `mapstructure:"file"`

	// Debug forces logging on at DEBUG level.
	Debug bool `mapstructure:"debug"`
}

// CacheConfig controls the resolution cache used by batch and watch.
type CacheConfig struct {
	// TTL is how long a result is reused. Zero keeps results until the
	// cache is invalidated.
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// WatchConfig controls the watch command.
type WatchConfig struct {
	// Debounce coalesces bursts of filesystem events.
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

// BatchConfig controls the batch command.
type BatchConfig struct {
	// Workers bounds concurrent resolutions.
	Workers int `mapstructure:"workers" validate:"gte=1,lte=256"`
}

// TelemetryConfig controls OpenTelemetry tracing of resolutions.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Exporter is stdout (spans printed to stderr) or otlp.
	Exporter string `mapstructure:"exporter" validate:"required,oneof=stdout otlp"`

	// Endpoint is the OTLP gRPC collector address, required for otlp.
	Endpoint string `mapstructure:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `mapstructure:"insecure"`
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"roam":      "roam",
	"common":    "common",
	"format":    "format",
	"log-file":  "log.file",
	"log-level": "log.level",
	"debug":     "log.debug",
	"trace":     "telemetry.enabled",
	"ttl":       "cache.ttl",
	"debounce":  "watch.debounce",
	"workers":   "batch.workers",
}

// Load builds the configuration.
//
// configPath selects a config file; empty means the default location, where
// a missing file is not an error. flags may be nil; when given, flags that
// were set on the command line override every other source.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Debug(log.CatConfig, "configuration loaded", "file", v.ConfigFileUsed(), "format", cfg.Format)
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("GITDIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv can see it during Unmarshal.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configPath == "" {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/gitdir, falling back to
// ~/.config/gitdir and finally the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gitdir")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "gitdir")
}

// DefaultConfigPath returns the config file read when --config is not given.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
