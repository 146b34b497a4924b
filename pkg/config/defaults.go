package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tilepad/tilepad-server/pkg/hub/models"
)

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in any unspecified configuration fields. Zero values
// are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	cfg.Database.ApplyDefaults()
	applyPluginsDefaults(&cfg.Plugins)
	applyAssetsDefaults(&cfg.Assets)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
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
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = models.DefaultPort
	}
}

func applyPluginsDefaults(cfg *PluginsConfig) {
	if cfg.CoreDir == "" {
		cfg.CoreDir = filepath.Join(dataDir(), "core-plugins")
	}
	if cfg.UserDir == "" {
		cfg.UserDir = filepath.Join(dataDir(), "plugins")
	}
}

func applyAssetsDefaults(cfg *AssetsConfig) {
	if cfg.IconsDir == "" {
		cfg.IconsDir = filepath.Join(dataDir(), "icons")
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = filepath.Join(dataDir(), "uploaded-icons")
	}
	if cfg.FontsDir == "" {
		cfg.FontsDir = filepath.Join(dataDir(), "fonts")
	}
}

// dataDir returns the hub data directory: $XDG_DATA_HOME/tilepad or
// ~/.local/share/tilepad.
func dataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "tilepad")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "tilepad")
}

var validate = validator.New()

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
