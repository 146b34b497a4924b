package protocol

import (
	"encoding/json"

	"github.com/tilepad/tilepad-server/pkg/hub/models"
)

// PluginClientType discriminates messages received from a plugin.
type PluginClientType string

const (
	PluginClientRegisterPlugin    PluginClientType = "RegisterPlugin"
	PluginClientGetProperties     PluginClientType = "GetProperties"
	PluginClientSetProperties     PluginClientType = "SetProperties"
	PluginClientSendToInspector   PluginClientType = "SendToInspector"
	PluginClientSendToDisplay     PluginClientType = "SendToDisplay"
	PluginClientOpenURL           PluginClientType = "OpenUrl"
	PluginClientGetTileProperties PluginClientType = "GetTileProperties"
	PluginClientSetTileProperties PluginClientType = "SetTileProperties"
	PluginClientSetTileIcon       PluginClientType = "SetTileIcon"
	PluginClientSetTileLabel      PluginClientType = "SetTileLabel"
	PluginClientGetVisibleTiles   PluginClientType = "GetVisibleTiles"
)

// PluginClientMessage is a message received from a plugin session. Only
// the fields matching Type are populated.
type PluginClientMessage struct {
	Type PluginClientType `json:"type"`

	// RegisterPlugin
	PluginID string `json:"plugin_id,omitempty"`

	// SetProperties / SetTileProperties
	Properties models.JSONObject `json:"properties,omitempty"`
	Partial    bool              `json:"partial,omitempty"`

	// SendToInspector / SendToDisplay
	Ctx     *InspectorContext `json:"ctx,omitempty"`
	Message json.RawMessage   `json:"message,omitempty"`

	// OpenUrl
	URL string `json:"url,omitempty"`

	// Tile operations
	TileID string            `json:"tile_id,omitempty"`
	Icon   *models.TileIcon  `json:"icon,omitempty"`
	Label  *models.TileLabel `json:"label,omitempty"`
}

// PluginServerType discriminates messages sent to a plugin.
type PluginServerType string

const (
	PluginServerRegistered        PluginServerType = "Registered"
	PluginServerProperties        PluginServerType = "Properties"
	PluginServerTileClicked       PluginServerType = "TileClicked"
	PluginServerRecvFromInspector PluginServerType = "RecvFromInspector"
	PluginServerRecvFromDisplay   PluginServerType = "RecvFromDisplay"
	PluginServerInspectorOpen     PluginServerType = "InspectorOpen"
	PluginServerInspectorClose    PluginServerType = "InspectorClose"
	PluginServerDeepLink          PluginServerType = "DeepLink"
	PluginServerTileProperties    PluginServerType = "TileProperties"
	PluginServerVisibleTiles      PluginServerType = "VisibleTiles"
)

// PluginServerMessage is a message sent to a plugin session.
type PluginServerMessage struct {
	Type PluginServerType `json:"type"`

	// Registered
	PluginID string `json:"plugin_id,omitempty"`

	// Properties / TileClicked / TileProperties
	Properties models.JSONObject `json:"properties,omitempty"`
	TileID     string            `json:"tile_id,omitempty"`

	// Inspector and display round-trips
	Ctx     *InspectorContext `json:"ctx,omitempty"`
	Message json.RawMessage   `json:"message,omitempty"`

	// DeepLink
	DeepLink *DeepLinkContext `json:"deep_link,omitempty"`

	// VisibleTiles
	Tiles []PluginTile `json:"tiles,omitempty"`
}

// NewPluginRegistered acknowledges a successful RegisterPlugin.
func NewPluginRegistered(pluginID string) PluginServerMessage {
	return PluginServerMessage{Type: PluginServerRegistered, PluginID: pluginID}
}

// NewPluginProperties replies to GetProperties.
func NewPluginProperties(properties models.JSONObject) PluginServerMessage {
	return PluginServerMessage{Type: PluginServerProperties, Properties: properties}
}

// NewPluginTileClicked notifies the plugin of a device tile press.
func NewPluginTileClicked(ctx InspectorContext, properties models.JSONObject) PluginServerMessage {
	return PluginServerMessage{Type: PluginServerTileClicked, Ctx: &ctx, Properties: properties}
}

// NewPluginRecvFromInspector wraps a UI inspector message.
func NewPluginRecvFromInspector(ctx InspectorContext, message json.RawMessage) PluginServerMessage {
	return PluginServerMessage{
		Type:    PluginServerRecvFromInspector,
		Ctx:     &ctx,
		Message: rawMessage(message),
	}
}

// NewPluginRecvFromDisplay wraps a device display message.
func NewPluginRecvFromDisplay(ctx InspectorContext, message json.RawMessage) PluginServerMessage {
	return PluginServerMessage{
		Type:    PluginServerRecvFromDisplay,
		Ctx:     &ctx,
		Message: rawMessage(message),
	}
}

// NewPluginTileProperties replies to GetTileProperties.
func NewPluginTileProperties(tileID string, properties models.JSONObject) PluginServerMessage {
	return PluginServerMessage{Type: PluginServerTileProperties, TileID: tileID, Properties: properties}
}

// NewPluginVisibleTiles replies to GetVisibleTiles.
func NewPluginVisibleTiles(tiles []*models.Tile) PluginServerMessage {
	view := make([]PluginTile, 0, len(tiles))
	for _, tile := range tiles {
		view = append(view, NewPluginTile(tile))
	}
	return PluginServerMessage{Type: PluginServerVisibleTiles, Tiles: view}
}

// NewPluginDeepLink delivers a parsed deep-link to the plugin.
func NewPluginDeepLink(link DeepLinkContext) PluginServerMessage {
	return PluginServerMessage{Type: PluginServerDeepLink, DeepLink: &link}
}
