// Package actions routes device tile presses: internal actions run against
// the store and the host platform, external actions are forwarded to the
// owning plugin session.
package actions

import (
	"context"
	"strings"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub/models"
	"github.com/tilepad/tilepad-server/pkg/hub/platform"
	"github.com/tilepad/tilepad-server/pkg/hub/protocol"
	"github.com/tilepad/tilepad-server/pkg/hub/store"
)

// InternalPrefix reserves the built-in plugin id namespace.
const InternalPrefix = "com.tilepad.system."

// Built-in plugin ids.
const (
	PluginNavigation = InternalPrefix + "navigation"
	PluginSystem     = InternalPrefix + "system"
)

// PluginSender delivers a server message to a plugin's registered session.
type PluginSender interface {
	SendToPlugin(pluginID string, msg protocol.PluginServerMessage) error
}

// DeviceRefresher pushes a device's current folder to its live session.
type DeviceRefresher interface {
	RefreshDevice(ctx context.Context, deviceID string)
}

// Dispatcher executes tile presses.
type Dispatcher struct {
	store    *store.Store
	plugins  PluginSender
	devices  DeviceRefresher
	platform platform.Platform
}

// NewDispatcher creates the action dispatcher.
func NewDispatcher(st *store.Store, plugins PluginSender, devices DeviceRefresher, plat platform.Platform) *Dispatcher {
	return &Dispatcher{store: st, plugins: plugins, devices: devices, platform: plat}
}

// TilePressed handles a press reported by an authenticated device session.
// Presses on tiles outside the device's current folder are stale and
// silently dropped; the device has since navigated away.
func (d *Dispatcher) TilePressed(ctx context.Context, device *models.Device, tileID string) {
	tile, err := d.store.GetTile(ctx, tileID)
	if err != nil {
		logger.Warn("press on unknown tile", "tile_id", tileID, "device_id", device.ID, "error", err)
		return
	}
	if tile.FolderID != device.FolderID {
		logger.Debug("dropping stale tile press",
			"tile_id", tileID, "device_id", device.ID, "folder_id", tile.FolderID)
		return
	}

	if strings.HasPrefix(tile.PluginID, InternalPrefix) {
		d.dispatchInternal(ctx, device, tile)
		return
	}

	pressCtx := protocol.InspectorContext{
		DeviceID:  device.ID,
		PluginID:  tile.PluginID,
		ActionID:  tile.ActionID,
		TileID:    tile.ID,
		ProfileID: device.ProfileID,
		FolderID:  tile.FolderID,
	}
	if err := d.plugins.SendToPlugin(tile.PluginID, protocol.NewPluginTileClicked(pressCtx, tile.Properties)); err != nil {
		logger.Warn("dropping tile press for offline plugin",
			"plugin_id", tile.PluginID, "tile_id", tileID, "error", err)
	}
}

// dispatchInternal runs the built-in action table. Internal actions never
// need a plugin session.
func (d *Dispatcher) dispatchInternal(ctx context.Context, device *models.Device, tile *models.Tile) {
	switch tile.PluginID {
	case PluginNavigation:
		d.dispatchNavigation(ctx, device, tile)
	case PluginSystem:
		d.dispatchSystem(device, tile)
	default:
		logger.Warn("press on unknown internal plugin",
			"plugin_id", tile.PluginID, "action_id", tile.ActionID)
	}
}

func (d *Dispatcher) dispatchNavigation(ctx context.Context, device *models.Device, tile *models.Tile) {
	switch tile.ActionID {
	case "switch_folder":
		folderID := propString(tile.Properties, "folder")
		if folderID == "" {
			logger.Warn("switch_folder without target folder", "tile_id", tile.ID)
			return
		}
		if err := d.store.SetDeviceFolder(ctx, device.ID, folderID); err != nil {
			logger.Warn("folder switch failed",
				"device_id", device.ID, "folder_id", folderID, "error", err)
			return
		}
	case "switch_profile":
		profileID := propString(tile.Properties, "profile")
		if profileID == "" {
			logger.Warn("switch_profile without target profile", "tile_id", tile.ID)
			return
		}
		if err := d.store.SetDeviceProfile(ctx, device.ID, profileID); err != nil {
			logger.Warn("profile switch failed",
				"device_id", device.ID, "profile_id", profileID, "error", err)
			return
		}
	default:
		logger.Warn("unknown navigation action", "action_id", tile.ActionID)
		return
	}
	d.devices.RefreshDevice(ctx, device.ID)
}

func (d *Dispatcher) dispatchSystem(device *models.Device, tile *models.Tile) {
	props := tile.Properties
	var err error
	switch tile.ActionID {
	case "website":
		err = d.platform.OpenURL(propString(props, "url"))
	case "open":
		err = d.platform.OpenPath(propString(props, "path"))
	case "open_folder":
		err = d.platform.OpenFolder(propString(props, "path"))
	case "close":
		err = d.platform.CloseProcess(propString(props, "path"))
	case "text":
		err = d.platform.TypeText(propString(props, "text"))
	case "multimedia":
		err = d.platform.Multimedia(platform.MultimediaAction(propString(props, "action")))
	case "hotkey":
		err = d.platform.Hotkey(propStrings(props, "modifiers"), propStrings(props, "keys"))
	case "clipboard":
		err = d.platform.SetClipboard(propString(props, "text"))
	default:
		logger.Warn("unknown system action", "action_id", tile.ActionID)
		return
	}
	if err != nil {
		logger.Warn("system action failed",
			"action_id", tile.ActionID, "device_id", device.ID, "error", err)
	}
}

// propString reads a string property, tolerating absence and wrong types.
func propString(props models.JSONObject, key string) string {
	if props == nil {
		return ""
	}
	s, _ := props[key].(string)
	return s
}

// propStrings reads a string-array property. JSON decoding yields []any;
// non-string elements are skipped.
func propStrings(props models.JSONObject, key string) []string {
	if props == nil {
		return nil
	}
	raw, _ := props[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
