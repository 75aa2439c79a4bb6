// Package config loads, validates and saves the telnetd configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// TELNETD_LOGGING_LEVEL=DEBUG or TELNETD_SERVER_ADDR=:2323.
const EnvPrefix = "TELNETD"

// Config represents the telnetd configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (TELNETD_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains listener, limit and timeout settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Console customizes the served console
	Console ConsoleConfig `mapstructure:"console" yaml:"console"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig configures the console listener.
type ServerConfig struct {
	// Addr is the TCP address to listen on
	Addr string `mapstructure:"addr" validate:"required,hostname_port" yaml:"addr"`

	// MaxConnections limits simultaneous connections (0 = unlimited)
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// MaxConnectionsPerIP limits simultaneous connections per client IP (0 = unlimited)
	MaxConnectionsPerIP int `mapstructure:"max_connections_per_ip" validate:"gte=0" yaml:"max_connections_per_ip"`

	// MaxIdleTime closes connections that send nothing for this long
	MaxIdleTime time.Duration `mapstructure:"max_idle_time" validate:"gte=0" yaml:"max_idle_time"`

	// ReadTimeout and WriteTimeout bound single network operations (0 = none)
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gte=0" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0" yaml:"write_timeout"`

	// OutputRateLimit throttles output per connection in bytes per second (0 = unlimited)
	OutputRateLimit int64 `mapstructure:"output_rate_limit" validate:"gte=0" yaml:"output_rate_limit"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns the /metrics endpoint on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Addr is the HTTP address of the metrics endpoint
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port" yaml:"addr"`
}

// ConsoleConfig overrides options of the served console. Empty prompts keep
// the console's own.
type ConsoleConfig struct {
	CommandPrompt  string `mapstructure:"command_prompt" yaml:"command_prompt,omitempty"`
	LoginPrompt    string `mapstructure:"login_prompt" yaml:"login_prompt,omitempty"`
	PasswordPrompt string `mapstructure:"password_prompt" yaml:"password_prompt,omitempty"`

	// Logins are added to the console's built-in logins
	Logins []LoginConfig `mapstructure:"logins" validate:"dive" yaml:"logins,omitempty"`
}

// LoginConfig is one accepted username/password pair.
type LoginConfig struct {
	Username string `mapstructure:"username" validate:"required" yaml:"username"`
	Password string `mapstructure:"password" validate:"required" yaml:"password"`
	Role     string `mapstructure:"role" validate:"required" yaml:"role"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (TELNETD_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location; a missing file is not an
// error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}
	return decode(v)
}

// decode unmarshals, defaults and validates whatever v holds.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Watch loads the configuration like Load and then calls onChange with the
// new configuration every time the file changes. Changes that fail to load
// are passed to onError and otherwise ignored.
//
// Watch needs an existing file: there is nothing to watch otherwise.
func Watch(configPath string, onChange func(*Config), onError func(error)) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return cfg, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(next)
	})
	v.WatchConfig()

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Owner read/write only: the file holds console passwords.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(GetConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

var envKeys = []string{
	"logging.level", "logging.format", "logging.output",
	"server.addr", "server.max_connections", "server.max_connections_per_ip",
	"server.max_idle_time", "server.read_timeout", "server.write_timeout",
	"server.output_rate_limit", "server.shutdown_timeout",
	"metrics.enabled", "metrics.addr",
	"console.command_prompt", "console.login_prompt", "console.password_prompt",
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// GetConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func GetConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "telnetd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "telnetd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}
