package config

import (
	"strings"
	"time"
)

// Default values for fields left empty.
const (
	DefaultAddr            = "localhost:10023"
	DefaultMetricsAddr     = "localhost:9102"
	DefaultMaxIdleTime     = 5 * time.Minute
	DefaultShutdownTimeout = 10 * time.Second
)

// ApplyDefaults fills in zero-valued fields and normalizes the log level.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxIdleTime == 0 {
		cfg.MaxIdleTime = DefaultMaxIdleTime
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Addr == "" {
		cfg.Addr = DefaultMetricsAddr
	}
}

// GetDefaultConfig returns a configuration with all defaults applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
