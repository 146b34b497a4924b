// Package config loads the static hub configuration.
//
// Dynamic state (profiles, folders, tiles, devices, settings) lives in the
// store and is managed through the hub API; this package only covers what
// must be known before the store opens.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (TILEPAD_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tilepad/tilepad-server/pkg/hub/store"
)

// Config is the static hub configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server configures the HTTP/WebSocket listener.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures the SQLite store.
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Plugins configures plugin manifest and asset directories.
	Plugins PluginsConfig `mapstructure:"plugins" yaml:"plugins"`

	// Assets configures the static asset directories served to devices.
	Assets AssetsConfig `mapstructure:"assets" yaml:"assets"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig configures the hub listener.
type ServerConfig struct {
	// Host is the bind address. The default binds all interfaces so
	// devices on the local network can reach the hub.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the listen port. The persisted settings row can override
	// this at startup when the user changed it from the UI.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// PluginsConfig configures plugin loading.
type PluginsConfig struct {
	// CoreDir holds the bundled plugins shipped with the hub.
	CoreDir string `mapstructure:"core_dir" yaml:"core_dir"`

	// UserDir holds user-installed plugins; it overrides CoreDir on
	// plugin id collision.
	UserDir string `mapstructure:"user_dir" yaml:"user_dir"`

	// DevWatch reloads plugins on manifest changes regardless of the
	// persisted developer-mode setting.
	DevWatch bool `mapstructure:"dev_watch" yaml:"dev_watch"`
}

// AssetsConfig configures the static asset roots served to devices.
type AssetsConfig struct {
	// IconsDir holds installed icon packs.
	IconsDir string `mapstructure:"icons_dir" yaml:"icons_dir"`

	// UploadsDir holds user-uploaded tile icons.
	UploadsDir string `mapstructure:"uploads_dir" yaml:"uploads_dir"`

	// FontsDir holds the font families offered for tile labels.
	FontsDir string `mapstructure:"fonts_dir" yaml:"fonts_dir"`
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	// Enabled exposes /metrics on the hub listener.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		return DefaultConfig(), nil
	}

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

// Save writes the configuration to the given path in YAML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper wires environment variables and the config file search path.
// Environment variables use the TILEPAD_ prefix, e.g. TILEPAD_LOGGING_LEVEL.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("TILEPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if one exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// ConfigDir returns the hub configuration directory: $XDG_CONFIG_HOME/tilepad
// or ~/.config/tilepad.
func ConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tilepad")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "tilepad")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultConfigExists checks for a config file at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}
