package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/tilepad/tilepad-server/internal/logger"
)

// ManifestFileName is the file each plugin directory must carry.
const ManifestFileName = "manifest.json"

// pluginIDPattern is the plugin id grammar: dot-segmented, each segment
// starting with an ASCII letter followed by letters, digits, '-' or '_'.
var pluginIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*(\.[A-Za-z][A-Za-z0-9_-]*)*$`)

// ValidatePluginID checks the plugin id grammar.
func ValidatePluginID(id string) error {
	if !pluginIDPattern.MatchString(id) {
		return fmt.Errorf("invalid plugin id %q", id)
	}
	return nil
}

// ManifestPlugin is the identity block of a plugin manifest.
type ManifestPlugin struct {
	ID      string   `json:"id" validate:"required"`
	Name    string   `json:"name" validate:"required"`
	Version string   `json:"version"`
	Authors []string `json:"authors,omitempty"`
	Icon    string   `json:"icon,omitempty"`
}

// ManifestAction describes one action the plugin implements.
type ManifestAction struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Icon      string `json:"icon,omitempty"`
	Inspector string `json:"inspector,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Manifest is the parsed plugin manifest.
type Manifest struct {
	Plugin  ManifestPlugin   `json:"plugin" validate:"required"`
	Actions []ManifestAction `json:"actions" validate:"dive"`
}

// Plugin is a loaded plugin: its manifest plus the directory it serves
// assets from.
type Plugin struct {
	Manifest Manifest
	Dir      string
}

// ID returns the plugin's manifest id.
func (p *Plugin) ID() string {
	return p.Manifest.Plugin.ID
}

// Action looks up an action by id.
func (p *Plugin) Action(actionID string) (*ManifestAction, bool) {
	for i := range p.Manifest.Actions {
		if p.Manifest.Actions[i].ID == actionID {
			return &p.Manifest.Actions[i], true
		}
	}
	return nil, false
}

var validate = validator.New()

// loadManifest parses and validates a manifest file.
func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON: %w", err)
	}
	if err := validate.Struct(&manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if err := ValidatePluginID(manifest.Plugin.ID); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// scanPlugins loads every plugin found under the given directories. Later
// directories win on id collision (user plugins override core plugins).
// Invalid manifests are skipped with a warning; they never block others.
func scanPlugins(dirs ...string) map[string]*Plugin {
	plugins := make(map[string]*Plugin)
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("cannot read plugin directory", "dir", dir, "error", err)
			}
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			pluginDir := filepath.Join(dir, entry.Name())
			manifestPath := filepath.Join(pluginDir, ManifestFileName)
			manifest, err := loadManifest(manifestPath)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				logger.Warn("skipping plugin with invalid manifest",
					"dir", pluginDir, "error", err)
				continue
			}
			plugins[manifest.Plugin.ID] = &Plugin{Manifest: *manifest, Dir: pluginDir}
			logger.Debug("loaded plugin manifest",
				"plugin_id", manifest.Plugin.ID, "dir", pluginDir)
		}
	}
	return plugins
}
