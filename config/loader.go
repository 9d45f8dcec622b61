// Package config provides configuration loading and parsing functionality
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
	FormatTOML ConfigFormat = "toml"
)

// FormatFromPath determines the configuration format from a file extension
func FormatFromPath(path string) (ConfigFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Loader handles configuration loading from various sources
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Default configuration
	defaultConfig *Config
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		searchPaths: []string{
			".",
			"./config",
			"/etc/frametree",
			os.Getenv("HOME") + "/.frametree",
		},
		envPrefix:     "FRAMETREE",
		defaultConfig: DefaultConfig(),
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the default configuration
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// Load loads configuration from filename, or discovers one in the search
// paths when filename is empty.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		return l.AutoLoad()
	}

	config, err := l.LoadFromFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from file %s: %w", filename, err)
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	format, err := FormatFromPath(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.finish(data, format)
}

// LoadFromReader loads configuration from an io.Reader
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	return l.finish(data, format)
}

// AutoLoad automatically discovers and loads configuration. When no file
// is found the defaults are used, still subject to environment overrides.
func (l *Loader) AutoLoad() (*Config, error) {
	configFile, err := l.findConfigFile()
	if errors.Is(err, ErrConfigFileNotFound) {
		return l.finish(nil, "")
	}
	if err != nil {
		return nil, err
	}

	return l.LoadFromFile(configFile)
}

// finish parses data over the defaults, applies environment overrides and
// validates the result. Empty data yields the defaults.
func (l *Loader) finish(data []byte, format ConfigFormat) (*Config, error) {
	config := l.defaults()

	if len(bytes.TrimSpace(data)) > 0 {
		if err := parseConfig(data, format, config); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// defaults returns a copy of the loader's default configuration
func (l *Loader) defaults() *Config {
	if l.defaultConfig == nil {
		return DefaultConfig()
	}
	config := *l.defaultConfig
	return &config
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, error) {
	filenames := []string{
		"frametree.yaml", "frametree.yml",
		"frametree.toml", "frametree.json",
		"config.yaml", "config.yml",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath, nil
			}
		}
	}

	return "", ErrConfigFileNotFound
}

// parseConfig decodes data into config. Fields absent from data keep the
// values already present in config.
func parseConfig(data []byte, format ConfigFormat, config *Config) error {
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, config)
	case FormatJSON:
		err = json.Unmarshal(data, config)
	case FormatTOML:
		err = toml.Unmarshal(data, config)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigParseError, format, err)
	}
	return nil
}

// loadFromEnv loads configuration overrides from environment variables
func (l *Loader) loadFromEnv(config *Config) error {
	// App configuration
	if val := l.env("APP_NAME"); val != "" {
		config.App.Name = val
	}
	if val := l.env("APP_VERSION"); val != "" {
		config.App.Version = val
	}
	if val := l.env("APP_ENVIRONMENT"); val != "" {
		config.App.Environment = Environment(val)
	}
	if val := l.env("APP_DEBUG"); val != "" {
		config.App.Debug = strings.ToLower(val) == "true"
	}

	// Log configuration
	if val := l.env("LOG_LEVEL"); val != "" {
		config.Log.Level = LogLevel(strings.ToLower(val))
	}
	if val := l.env("LOG_FORMAT"); val != "" {
		config.Log.Format = val
	}
	if val := l.env("LOG_OUTPUT"); val != "" {
		config.Log.Output = val
	}
	if val := l.env("LOG_NOCOLOR"); val != "" {
		config.Log.NoColor = strings.ToLower(val) == "true"
	}

	// Notifier configuration
	if val := l.env("NOTIFIER_MAILBOX_SIZE"); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_NOTIFIER_MAILBOX_SIZE: %w", l.envPrefix, err)
		}
		config.Notifier.MailboxSize = size
	}
	if val := l.env("NOTIFIER_SCRIPT"); val != "" {
		config.Notifier.Script = val
	}

	// Monitor configuration
	if val := l.env("MONITOR_ENABLED"); val != "" {
		config.Monitor.Enabled = strings.ToLower(val) == "true"
	}
	if val := l.env("MONITOR_ADDRESS"); val != "" {
		config.Monitor.Address = val
	}
	if val := l.env("MONITOR_MAX_WAIT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s_MONITOR_MAX_WAIT: %w", l.envPrefix, err)
		}
		config.Monitor.MaxWait = d
	}

	// Ingest configuration
	if val := l.env("INGEST_ENABLED"); val != "" {
		config.Ingest.Enabled = strings.ToLower(val) == "true"
	}
	if val := l.env("INGEST_ADDRESS"); val != "" {
		config.Ingest.Address = val
	}

	return nil
}

func (l *Loader) env(key string) string {
	return os.Getenv(l.envPrefix + "_" + key)
}
