// Package config provides configuration management for frametree
package config

import (
	"fmt"
	"net"
	"time"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelTrace    LogLevel = "trace"
	LogLevelDebug    LogLevel = "debug"
	LogLevelInfo     LogLevel = "info"
	LogLevelWarn     LogLevel = "warn"
	LogLevelError    LogLevel = "error"
	LogLevelDisabled LogLevel = "disabled"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelDisabled:
		return true
	default:
		return false
	}
}

// Log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config represents the complete frametree configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app" toml:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log" toml:"log"`

	// Frame tree configuration
	Tree TreeConfig `yaml:"tree" json:"tree" toml:"tree"`

	// Lifecycle notifier configuration
	Notifier NotifierConfig `yaml:"notifier" json:"notifier" toml:"notifier"`

	// Monitoring configuration
	Monitor MonitorConfig `yaml:"monitor" json:"monitor" toml:"monitor"`

	// Event ingestion configuration
	Ingest IngestConfig `yaml:"ingest" json:"ingest" toml:"ingest"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name" toml:"name"`

	// Application version
	Version string `yaml:"version" json:"version" toml:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment" toml:"environment"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug" toml:"debug"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level" toml:"level"`

	// Log format (json, text)
	Format string `yaml:"format" json:"format" toml:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output" toml:"output"`

	// Disable colored console output
	NoColor bool `yaml:"no_color" json:"no_color" toml:"no_color"`
}

// TreeConfig contains frame tree settings
type TreeConfig struct {
	// Channel size of each Watch subscriber
	WatchBuffer int `yaml:"watch_buffer" json:"watch_buffer" toml:"watch_buffer"`
}

// NotifierConfig contains lifecycle notifier settings
type NotifierConfig struct {
	// Mailbox capacity for pending lifecycle events
	MailboxSize int `yaml:"mailbox_size" json:"mailbox_size" toml:"mailbox_size"`

	// Optional event script replayed on startup
	Script string `yaml:"script,omitempty" json:"script,omitempty" toml:"script"`
}

// MonitorConfig contains the HTTP inspection server settings
type MonitorConfig struct {
	// Enable the HTTP server
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// Listen address (host:port)
	Address string `yaml:"address" json:"address" toml:"address"`

	// Metrics endpoint path
	MetricsPath string `yaml:"metrics_path" json:"metrics_path" toml:"metrics_path"`

	// Upper bound for the wait endpoint timeout
	MaxWait time.Duration `yaml:"max_wait" json:"max_wait" toml:"max_wait"`
}

// IngestConfig contains the TCP event feed settings
type IngestConfig struct {
	// Enable the TCP listener
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// Listen address (host:port)
	Address string `yaml:"address" json:"address" toml:"address"`

	// Maximum concurrent connections, 0 for unlimited
	MaxConnections int `yaml:"max_connections" json:"max_connections" toml:"max_connections"`

	// Connections idle longer than this are closed, 0 disables
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "frametree",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
			Debug:       false,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
			Output: "stdout",
		},
		Tree: TreeConfig{
			WatchBuffer: 100,
		},
		Notifier: NotifierConfig{
			MailboxSize: 1000,
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			Address:     "127.0.0.1:9090",
			MetricsPath: "/metrics",
			MaxWait:     30 * time.Second,
		},
		Ingest: IngestConfig{
			Enabled:        false,
			Address:        "127.0.0.1:9091",
			MaxConnections: 64,
			IdleTimeout:    5 * time.Minute,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate app config
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	// Validate log config
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	if c.Log.Format != LogFormatText && c.Log.Format != LogFormatJSON {
		return ErrInvalidLogFormat
	}

	if c.Tree.WatchBuffer <= 0 {
		return ErrInvalidWatchBuffer
	}
	if c.Notifier.MailboxSize <= 0 {
		return ErrInvalidMailboxSize
	}

	// Validate monitor config
	if c.Monitor.Enabled {
		if _, _, err := net.SplitHostPort(c.Monitor.Address); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidMonitorAddr, c.Monitor.Address, err)
		}
		if c.Monitor.MaxWait <= 0 {
			return ErrInvalidWaitTimeout
		}
	}

	// Validate ingest config
	if c.Ingest.Enabled {
		if _, _, err := net.SplitHostPort(c.Ingest.Address); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidIngestAddr, c.Ingest.Address, err)
		}
		if c.Ingest.MaxConnections < 0 {
			return ErrInvalidIngestLimit
		}
	}

	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// IsDebugEnabled returns true if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == EnvDevelopment
}
