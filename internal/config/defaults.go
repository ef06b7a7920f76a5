package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// defaults are registered with viper so every key is known to AutomaticEnv.
var defaults = map[string]any{
	"roam":               false,
	"common":             false,
	"format":             "text",
	"log.level":          "INFO",
	"log.file":           "",
	"log.debug":          false,
	"cache.ttl":          30 * time.Second,
	"watch.debounce":     100 * time.Millisecond,
	"batch.workers":      8,
	"telemetry.enabled":  false,
	"telemetry.exporter": "stdout",
	"telemetry.endpoint": "",
	"telemetry.insecure": false,
}

// DebugLogFile is where --debug writes when no log file is configured.
func DebugLogFile() string {
	return filepath.Join(os.TempDir(), "gitdir-debug.log")
}

// ApplyDefaults fills zero values and normalizes case-insensitive fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)

	applyLogDefaults(&cfg.Log)

	if cfg.Batch.Workers == 0 {
		cfg.Batch.Workers = 8
	}

	if cfg.Telemetry.Exporter == "" {
		cfg.Telemetry.Exporter = "stdout"
	}
	cfg.Telemetry.Exporter = strings.ToLower(cfg.Telemetry.Exporter)
}

func applyLogDefaults(cfg *LogConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Debug {
		cfg.Level = "DEBUG"
		if cfg.File == "" {
			cfg.File = DebugLogFile()
		}
	}
}
