package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file %s: %v", name, err)
	}
	return path
}

// TestDefaultConfigValid tests that the defaults pass validation
func TestDefaultConfigValid(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("Default config validation failed: %v", err)
	}
	if !config.IsDevelopment() {
		t.Error("Default environment should be development")
	}
	if !config.IsDebugEnabled() {
		t.Error("Debug should be enabled in development")
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid app name",
			mutate:  func(c *Config) { c.App.Name = "" },
			wantErr: ErrInvalidAppName,
		},
		{
			name:    "invalid environment",
			mutate:  func(c *Config) { c.App.Environment = "moon" },
			wantErr: ErrInvalidEnvironment,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: ErrInvalidLogFormat,
		},
		{
			name:    "invalid watch buffer",
			mutate:  func(c *Config) { c.Tree.WatchBuffer = 0 },
			wantErr: ErrInvalidWatchBuffer,
		},
		{
			name:    "invalid mailbox size",
			mutate:  func(c *Config) { c.Notifier.MailboxSize = -1 },
			wantErr: ErrInvalidMailboxSize,
		},
		{
			name:    "invalid monitor address",
			mutate:  func(c *Config) { c.Monitor.Address = "no-port" },
			wantErr: ErrInvalidMonitorAddr,
		},
		{
			name:    "invalid wait timeout",
			mutate:  func(c *Config) { c.Monitor.MaxWait = 0 },
			wantErr: ErrInvalidWaitTimeout,
		},
		{
			name: "invalid ingest address",
			mutate: func(c *Config) {
				c.Ingest.Enabled = true
				c.Ingest.Address = "9091"
			},
			wantErr: ErrInvalidIngestAddr,
		},
		{
			name: "invalid ingest limit",
			mutate: func(c *Config) {
				c.Ingest.Enabled = true
				c.Ingest.MaxConnections = -1
			},
			wantErr: ErrInvalidIngestLimit,
		},
		{
			name: "monitor disabled skips address check",
			mutate: func(c *Config) {
				c.Monitor.Enabled = false
				c.Monitor.Address = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Config.Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Config.Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoader tests YAML configuration loading
func TestLoader(t *testing.T) {
	yamlFile := writeFile(t, t.TempDir(), "frametree.yaml", `
app:
  name: test-app
  version: "1.0.0"
  environment: testing

log:
  level: debug
  format: json

notifier:
  mailbox_size: 64

monitor:
  address: "127.0.0.1:9191"
  max_wait: 5s
`)

	config, err := NewLoader().LoadFromFile(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load YAML config: %v", err)
	}

	if config.App.Name != "test-app" {
		t.Errorf("Expected app name 'test-app', got '%s'", config.App.Name)
	}
	if config.App.Environment != EnvTesting {
		t.Errorf("Expected env testing, got %v", config.App.Environment)
	}
	if config.Log.Level != LogLevelDebug {
		t.Errorf("Expected log level debug, got %v", config.Log.Level)
	}
	if config.Notifier.MailboxSize != 64 {
		t.Errorf("Expected mailbox size 64, got %d", config.Notifier.MailboxSize)
	}
	if config.Monitor.MaxWait != 5*time.Second {
		t.Errorf("Expected max wait 5s, got %v", config.Monitor.MaxWait)
	}

	// Unspecified sections keep their defaults
	if config.Tree.WatchBuffer != 100 {
		t.Errorf("Expected default watch buffer 100, got %d", config.Tree.WatchBuffer)
	}
	if config.Monitor.MetricsPath != "/metrics" {
		t.Errorf("Expected default metrics path, got %q", config.Monitor.MetricsPath)
	}
}

// TestLoaderJSON tests JSON configuration loading
func TestLoaderJSON(t *testing.T) {
	jsonFile := writeFile(t, t.TempDir(), "frametree.json", `{
	"app": {
		"name": "json-test-app",
		"environment": "production"
	},
	"log": {
		"level": "warn"
	},
	"tree": {
		"watch_buffer": 8
	}
}`)

	config, err := NewLoader().LoadFromFile(jsonFile)
	if err != nil {
		t.Fatalf("Failed to load JSON config: %v", err)
	}

	if config.App.Name != "json-test-app" {
		t.Errorf("Expected app name 'json-test-app', got '%s'", config.App.Name)
	}
	if !config.IsProduction() {
		t.Errorf("Expected env production, got %v", config.App.Environment)
	}
	if config.Tree.WatchBuffer != 8 {
		t.Errorf("Expected watch buffer 8, got %d", config.Tree.WatchBuffer)
	}
}

// TestLoaderTOML tests TOML configuration loading
func TestLoaderTOML(t *testing.T) {
	tomlFile := writeFile(t, t.TempDir(), "frametree.toml", `
[app]
name = "toml-test-app"
environment = "staging"

[monitor]
enabled = false
`)

	config, err := NewLoader().LoadFromFile(tomlFile)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if config.App.Name != "toml-test-app" {
		t.Errorf("Expected app name 'toml-test-app', got '%s'", config.App.Name)
	}
	if config.App.Environment != EnvStaging {
		t.Errorf("Expected env staging, got %v", config.App.Environment)
	}
	if config.Monitor.Enabled {
		t.Error("Monitor should be disabled")
	}
}

// TestLoaderErrors tests format and parse failures
func TestLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader()

	iniFile := writeFile(t, dir, "frametree.ini", "name=x")
	if _, err := loader.LoadFromFile(iniFile); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}

	badYAML := writeFile(t, dir, "bad.yaml", "app: [unterminated")
	if _, err := loader.LoadFromFile(badYAML); !errors.Is(err, ErrConfigParseError) {
		t.Errorf("Expected ErrConfigParseError, got %v", err)
	}

	invalid := writeFile(t, dir, "invalid.yaml", "log:\n  level: loud\n")
	if _, err := loader.LoadFromFile(invalid); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("Expected ErrInvalidLogLevel, got %v", err)
	}

	if _, err := loader.LoadFromReader(strings.NewReader("x"), "ini"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat from reader, got %v", err)
	}
}

// TestEnvironmentOverrides tests environment variable overrides
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("FRAMETREE_APP_NAME", "env-test-app")
	t.Setenv("FRAMETREE_LOG_LEVEL", "ERROR")
	t.Setenv("FRAMETREE_NOTIFIER_MAILBOX_SIZE", "7")
	t.Setenv("FRAMETREE_MONITOR_ADDRESS", "0.0.0.0:7777")
	t.Setenv("FRAMETREE_MONITOR_MAX_WAIT", "1m")
	t.Setenv("FRAMETREE_INGEST_ENABLED", "true")

	config, err := NewLoader().LoadFromReader(strings.NewReader(`
app:
  name: base-app
log:
  level: info
`), FormatYAML)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.App.Name != "env-test-app" {
		t.Errorf("Expected app name 'env-test-app', got '%s'", config.App.Name)
	}
	if config.Log.Level != LogLevelError {
		t.Errorf("Expected log level error, got %v", config.Log.Level)
	}
	if config.Notifier.MailboxSize != 7 {
		t.Errorf("Expected mailbox size 7, got %d", config.Notifier.MailboxSize)
	}
	if config.Monitor.Address != "0.0.0.0:7777" {
		t.Errorf("Expected monitor address override, got %q", config.Monitor.Address)
	}
	if config.Monitor.MaxWait != time.Minute {
		t.Errorf("Expected max wait 1m, got %v", config.Monitor.MaxWait)
	}
	if !config.Ingest.Enabled {
		t.Error("Expected ingest enabled by environment")
	}
}

// TestEnvironmentOverrideInvalid tests malformed numeric overrides
func TestEnvironmentOverrideInvalid(t *testing.T) {
	t.Setenv("FRAMETREE_NOTIFIER_MAILBOX_SIZE", "lots")

	if _, err := NewLoader().LoadFromReader(strings.NewReader(""), FormatYAML); err == nil {
		t.Fatal("Expected error for non-numeric mailbox size")
	}
}

// TestAutoLoad tests automatic configuration discovery
func TestAutoLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "frametree.yaml", `
app:
  name: auto-load-app
`)

	config, err := NewLoader().SetSearchPaths([]string{dir}).AutoLoad()
	if err != nil {
		t.Fatalf("Failed to auto-load config: %v", err)
	}
	if config.App.Name != "auto-load-app" {
		t.Errorf("Expected app name 'auto-load-app', got '%s'", config.App.Name)
	}

	// No file anywhere falls back to defaults
	config, err = NewLoader().SetSearchPaths([]string{t.TempDir()}).Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if config.App.Name != "frametree" {
		t.Errorf("Expected default app name, got '%s'", config.App.Name)
	}
}

// TestDefaultConfigNotShared tests that loads never mutate the loader defaults
func TestDefaultConfigNotShared(t *testing.T) {
	defaults := DefaultConfig()
	loader := NewLoader().SetDefaultConfig(defaults)

	if _, err := loader.LoadFromReader(strings.NewReader("app:\n  name: other\n"), FormatYAML); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if defaults.App.Name != "frametree" {
		t.Errorf("Loader mutated its defaults: %q", defaults.App.Name)
	}
}

// TestWatcher tests configuration file watching
func TestWatcher(t *testing.T) {
	configFile := writeFile(t, t.TempDir(), "watch.yaml", `
app:
  name: watch-test-app
log:
  level: info
`)

	watcher, err := NewWatcher(configFile, NewLoader(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()
	watcher.SetDebounce(20 * time.Millisecond)

	if got := watcher.GetConfig().App.Name; got != "watch-test-app" {
		t.Errorf("Expected initial app name 'watch-test-app', got '%s'", got)
	}

	changeDetected := make(chan *Config, 1)
	watcher.OnConfigChange(func(oldConfig, newConfig *Config) {
		if newConfig.Log.Level == LogLevelDebug {
			select {
			case changeDetected <- newConfig:
			default:
			}
		}
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(configFile, []byte("app:\n  name: watch-test-app\nlog:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	select {
	case cfg := <-changeDetected:
		if cfg.App.Name != "watch-test-app" {
			t.Errorf("Unexpected reloaded app name %q", cfg.App.Name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Configuration change was not detected within timeout")
	}

	if got := watcher.GetConfig().Log.Level; got != LogLevelDebug {
		t.Errorf("Expected reloaded log level debug, got %v", got)
	}
}

// TestWatcherManualReload tests Reload without file events
func TestWatcherManualReload(t *testing.T) {
	dir := t.TempDir()
	configFile := writeFile(t, dir, "manual.yaml", "app:\n  name: before\n")

	watcher, err := NewWatcher(configFile, NewLoader(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	writeFile(t, dir, "manual.yaml", "app:\n  name: after\n")
	if err := watcher.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := watcher.GetConfig().App.Name; got != "after" {
		t.Errorf("Expected app name 'after', got '%s'", got)
	}

	// A broken file keeps the last good configuration
	writeFile(t, dir, "manual.yaml", "log:\n  level: loud\n")
	if err := watcher.Reload(); err == nil {
		t.Error("Expected reload error for invalid config")
	}
	if got := watcher.GetConfig().App.Name; got != "after" {
		t.Errorf("Expected last good config to be kept, got '%s'", got)
	}
}
