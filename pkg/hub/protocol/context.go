// Package protocol defines the JSON wire messages exchanged with device
// and plugin WebSocket sessions.
//
// Both protocols are tagged unions discriminated by a "type" field. The
// two namespaces share the shape but not the tag values. Open-ended
// message/properties bodies are carried as raw JSON so unknown content
// round-trips untouched.
package protocol

import (
	"encoding/json"

	"github.com/tilepad/tilepad-server/pkg/hub/models"
)

// InspectorContext identifies the tile a UI inspector pane is bound to.
// It travels unmodified round-trip between the UI, the plugin and back.
type InspectorContext struct {
	DeviceID  string `json:"device_id,omitempty"`
	PluginID  string `json:"plugin_id"`
	ActionID  string `json:"action_id"`
	TileID    string `json:"tile_id"`
	ProfileID string `json:"profile_id,omitempty"`
	FolderID  string `json:"folder_id,omitempty"`
}

// DeepLinkContext is the parsed form of a tilepad:// deep-link URL.
type DeepLinkContext struct {
	URL      string `json:"url"`
	Host     string `json:"host"`
	Path     string `json:"path"`
	Query    string `json:"query,omitempty"`
	Fragment string `json:"fragment,omitempty"`
}

// DeviceTile is the tile view sent to devices. Plugin-owned properties are
// not exposed to the device channel.
type DeviceTile struct {
	ID       string            `json:"id"`
	Row      int               `json:"row"`
	Column   int               `json:"column"`
	PluginID string            `json:"plugin_id"`
	ActionID string            `json:"action_id"`
	Config   models.TileConfig `json:"config"`
}

// NewDeviceTile projects a stored tile onto the device view.
func NewDeviceTile(tile *models.Tile) DeviceTile {
	return DeviceTile{
		ID:       tile.ID,
		Row:      tile.Row,
		Column:   tile.Column,
		PluginID: tile.PluginID,
		ActionID: tile.ActionID,
		Config:   tile.Config,
	}
}

// PluginTile is the tile view sent to plugins for visible-tile queries.
type PluginTile struct {
	ID         string            `json:"id"`
	ActionID   string            `json:"action_id"`
	FolderID   string            `json:"folder_id"`
	Properties models.JSONObject `json:"properties"`
}

// NewPluginTile projects a stored tile onto the plugin view.
func NewPluginTile(tile *models.Tile) PluginTile {
	return PluginTile{
		ID:         tile.ID,
		ActionID:   tile.ActionID,
		FolderID:   tile.FolderID,
		Properties: tile.Properties,
	}
}

// rawMessage returns a non-nil raw JSON body.
func rawMessage(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
