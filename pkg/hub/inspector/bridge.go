// Package inspector relays messages between the desktop UI's inspector
// pane and the plugin owning the inspected tile.
//
// UI-to-plugin traffic goes straight to the plugin session; plugin-to-UI
// traffic arrives via the event bus. Delivery is best-effort in both
// directions, matching the pane's transient nature.
package inspector

import (
	"encoding/json"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub/events"
	"github.com/tilepad/tilepad-server/pkg/hub/protocol"
)

// PluginSender delivers a server message to a plugin's registered session.
// Implemented by the plugin registry.
type PluginSender interface {
	SendToPlugin(pluginID string, msg protocol.PluginServerMessage) error
}

// Bridge is the UI-facing inspector surface.
type Bridge struct {
	plugins PluginSender
	bus     *events.Bus
}

// NewBridge creates the inspector bridge.
func NewBridge(plugins PluginSender, bus *events.Bus) *Bridge {
	return &Bridge{plugins: plugins, bus: bus}
}

// SendPluginMessage forwards a UI inspector message to the plugin bound in
// ctx. Messages for offline plugins are dropped with a warning.
func (b *Bridge) SendPluginMessage(ctx protocol.InspectorContext, message json.RawMessage) {
	err := b.plugins.SendToPlugin(ctx.PluginID, protocol.NewPluginRecvFromInspector(ctx, message))
	if err != nil {
		logger.Warn("dropping inspector message for offline plugin",
			"plugin_id", ctx.PluginID, "tile_id", ctx.TileID, "error", err)
	}
}

// OpenInspector tells the plugin its inspector pane opened and mirrors the
// transition onto the event bus.
func (b *Bridge) OpenInspector(ctx protocol.InspectorContext) {
	err := b.plugins.SendToPlugin(ctx.PluginID, protocol.PluginServerMessage{
		Type: protocol.PluginServerInspectorOpen,
		Ctx:  &ctx,
	})
	if err != nil {
		logger.Debug("inspector open for offline plugin", "plugin_id", ctx.PluginID)
	}
	b.bus.Publish(events.TopicInspectorOpen, ctx)
}

// CloseInspector tells the plugin its inspector pane closed.
func (b *Bridge) CloseInspector(ctx protocol.InspectorContext) {
	err := b.plugins.SendToPlugin(ctx.PluginID, protocol.PluginServerMessage{
		Type: protocol.PluginServerInspectorClose,
		Ctx:  &ctx,
	})
	if err != nil {
		logger.Debug("inspector close for offline plugin", "plugin_id", ctx.PluginID)
	}
	b.bus.Publish(events.TopicInspectorClose, ctx)
}
