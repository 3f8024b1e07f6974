package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Backend  BackendConfig  `toml:"backend"`
	Poller   PollerConfig   `toml:"poller"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
}

// BackendConfig points the client at the job registry.
type BackendConfig struct {
	BaseURL           string  `toml:"base_url"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// PollerConfig controls the refresh loop. Backoff and grace window are tunable, not fixed.
type PollerConfig struct {
	IntervalSeconds    int  `toml:"interval_seconds"`
	MaxIntervalSeconds int  `toml:"max_interval_seconds"`
	GraceCycles        int  `toml:"grace_cycles"`
	AutoRefresh        bool `toml:"auto_refresh"`
}

// DatabaseConfig contains local sqlite settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains the sandbox backend listen address.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig contains log level and the dashboard log file.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Timeout returns the per-request timeout.
func (c BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Interval returns the normal poll cadence.
func (c PollerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// MaxInterval returns the backoff cap.
func (c PollerConfig) MaxInterval() time.Duration {
	return time.Duration(c.MaxIntervalSeconds) * time.Second
}

// MinGraceCycles is the fewest consecutive absences before a cached job may be dropped.
const MinGraceCycles = 2

// Validate checks values that would make the client misbehave.
func (c *Config) Validate() error {
	switch {
	case c.Backend.BaseURL == "":
		return fmt.Errorf("%w: backend.base_url is empty", ErrInvalidConfig)
	case c.Poller.IntervalSeconds <= 0:
		return fmt.Errorf("%w: poller.interval_seconds must be positive", ErrInvalidConfig)
	case c.Poller.MaxIntervalSeconds < c.Poller.IntervalSeconds:
		return fmt.Errorf("%w: poller.max_interval_seconds must be >= interval_seconds", ErrInvalidConfig)
	case c.Poller.GraceCycles < MinGraceCycles:
		return fmt.Errorf("%w: poller.grace_cycles must be at least %d", ErrInvalidConfig, MinGraceCycles)
	}
	return nil
}

// LoadConfig reads a TOML file on top of the defaults, so omitted keys keep their default value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
