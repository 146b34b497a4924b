// Package plugins loads plugin manifests from disk and tracks live plugin
// sessions, routing their requests into the tile service, the property
// store, the platform layer and the device registry.
package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub/events"
	"github.com/tilepad/tilepad-server/pkg/hub/metrics"
	"github.com/tilepad/tilepad-server/pkg/hub/models"
	"github.com/tilepad/tilepad-server/pkg/hub/platform"
	"github.com/tilepad/tilepad-server/pkg/hub/protocol"
	"github.com/tilepad/tilepad-server/pkg/hub/session"
	"github.com/tilepad/tilepad-server/pkg/hub/store"
	"github.com/tilepad/tilepad-server/pkg/hub/tiles"
)

// ErrPluginNotConnected is returned when a message targets a plugin
// without a live registered session.
var ErrPluginNotConnected = errors.New("plugin is not connected")

// DeviceSender is the slice of the device registry the plugin side needs:
// pushing display messages to a device and enumerating visible folders.
type DeviceSender interface {
	SendToDevice(deviceID string, msg protocol.DeviceServerMessage) bool
	VisibleFolderIDs(ctx context.Context) []string
}

// InspectorMessage is the bus payload for a plugin-to-inspector message.
// The UI side subscribes and relays it into the open inspector view.
type InspectorMessage struct {
	Ctx     protocol.InspectorContext `json:"ctx"`
	Message json.RawMessage           `json:"message"`
}

// Registry indexes loaded plugin manifests and live plugin sessions.
//
// A session starts unregistered; only RegisterPlugin is honored until it
// binds to a loaded manifest id. Locks are only held across map
// mutations, never across store or socket operations.
type Registry struct {
	store    *store.Store
	bus      *events.Bus
	tiles    *tiles.Service
	platform platform.Platform
	devices  DeviceSender

	dirs []string

	mu             sync.RWMutex
	plugins        map[string]*Plugin          // plugin id -> manifest
	sessions       map[string]*session.Session // session id -> session
	sessionPlugins map[string]string           // session id -> plugin id
	pluginSessions map[string]string           // plugin id -> session id
}

// NewRegistry creates a plugin registry scanning the given manifest
// directories, in order, with later directories overriding earlier ones.
func NewRegistry(st *store.Store, bus *events.Bus, tilesSvc *tiles.Service, plat platform.Platform, dirs ...string) *Registry {
	return &Registry{
		store:          st,
		bus:            bus,
		tiles:          tilesSvc,
		platform:       plat,
		dirs:           dirs,
		plugins:        scanPlugins(dirs...),
		sessions:       make(map[string]*session.Session),
		sessionPlugins: make(map[string]string),
		pluginSessions: make(map[string]string),
	}
}

// SetDeviceSender injects the device registry. Must be called before the
// first connection is accepted.
func (r *Registry) SetDeviceSender(d DeviceSender) { r.devices = d }

// Plugin returns the loaded plugin for an id.
func (r *Registry) Plugin(pluginID string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[pluginID]
	return p, ok
}

// Plugins returns a snapshot of the loaded plugins.
func (r *Registry) Plugins() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	return out
}

// ConnectedPluginIDs returns the ids of plugins with a registered session.
func (r *Registry) ConnectedPluginIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.pluginSessions))
	for id := range r.pluginSessions {
		ids = append(ids, id)
	}
	return ids
}

// Reload rescans the manifest directories. Sessions registered to a
// plugin whose manifest disappeared are closed.
func (r *Registry) Reload() {
	next := scanPlugins(r.dirs...)

	r.mu.Lock()
	r.plugins = next
	var orphaned []*session.Session
	for pluginID, sessionID := range r.pluginSessions {
		if _, ok := next[pluginID]; !ok {
			if s := r.sessions[sessionID]; s != nil {
				orphaned = append(orphaned, s)
			}
		}
	}
	r.mu.Unlock()

	for _, s := range orphaned {
		s.CloseWithReason("plugin unloaded")
	}
	logger.Info("plugins reloaded", "count", len(next))
}

// HandleConnection wraps an upgraded socket into a plugin session and
// blocks until it closes.
func (r *Registry) HandleConnection(conn *websocket.Conn) {
	s := session.New(conn, session.KindPlugin, r)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	logger.Debug("plugin session opened", "session_id", s.ID())
	s.Run()
}

// OnMessage implements session.Handler.
func (r *Registry) OnMessage(s *session.Session, data []byte) {
	var msg protocol.PluginClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.MessagesDropped.WithLabelValues(string(session.KindPlugin)).Inc()
		logger.Warn("dropping malformed plugin message", "session_id", s.ID(), "error", err)
		return
	}

	if msg.Type == protocol.PluginClientRegisterPlugin {
		r.handleRegister(s, msg.PluginID)
		return
	}

	pluginID, ok := r.registeredPlugin(s)
	if !ok {
		metrics.MessagesDropped.WithLabelValues(string(session.KindPlugin)).Inc()
		logger.Warn("dropping frame from unregistered plugin session",
			"session_id", s.ID(), "type", msg.Type)
		return
	}

	ctx := context.Background()
	switch msg.Type {
	case protocol.PluginClientGetProperties:
		r.handleGetProperties(ctx, s, pluginID)
	case protocol.PluginClientSetProperties:
		r.handleSetProperties(ctx, pluginID, msg)
	case protocol.PluginClientSendToInspector:
		r.handleSendToInspector(pluginID, msg)
	case protocol.PluginClientSendToDisplay:
		r.handleSendToDisplay(pluginID, msg)
	case protocol.PluginClientOpenURL:
		if err := r.platform.OpenURL(msg.URL); err != nil {
			logger.Warn("plugin url open failed", "plugin_id", pluginID, "error", err)
		}
	case protocol.PluginClientGetTileProperties:
		r.handleGetTileProperties(ctx, s, pluginID, msg.TileID)
	case protocol.PluginClientSetTileProperties:
		r.handleSetTileProperties(ctx, pluginID, msg)
	case protocol.PluginClientSetTileIcon:
		r.handleSetTileIcon(ctx, pluginID, msg)
	case protocol.PluginClientSetTileLabel:
		r.handleSetTileLabel(ctx, pluginID, msg)
	case protocol.PluginClientGetVisibleTiles:
		r.handleGetVisibleTiles(ctx, s, pluginID)
	default:
		metrics.MessagesDropped.WithLabelValues(string(session.KindPlugin)).Inc()
		logger.Warn("dropping plugin message with unknown type",
			"session_id", s.ID(), "type", msg.Type)
	}
}

// OnClose implements session.Handler.
func (r *Registry) OnClose(s *session.Session) {
	r.mu.Lock()
	delete(r.sessions, s.ID())
	if pluginID, ok := r.sessionPlugins[s.ID()]; ok {
		delete(r.sessionPlugins, s.ID())
		if r.pluginSessions[pluginID] == s.ID() {
			delete(r.pluginSessions, pluginID)
		}
	}
	r.mu.Unlock()
	logger.Debug("plugin session closed", "session_id", s.ID())
}

// SendToPlugin delivers a server message to a plugin's registered session.
func (r *Registry) SendToPlugin(pluginID string, msg protocol.PluginServerMessage) error {
	r.mu.RLock()
	var s *session.Session
	if sessionID, ok := r.pluginSessions[pluginID]; ok {
		s = r.sessions[sessionID]
	}
	r.mu.RUnlock()
	if s == nil {
		return ErrPluginNotConnected
	}
	s.Send(msg)
	return nil
}

// ForwardDisplayMessage routes a device display message to the owning
// plugin, dropping it with a warning when the plugin is offline.
func (r *Registry) ForwardDisplayMessage(ctx protocol.InspectorContext, message json.RawMessage) {
	if err := r.SendToPlugin(ctx.PluginID, protocol.NewPluginRecvFromDisplay(ctx, message)); err != nil {
		logger.Warn("dropping display message for offline plugin",
			"plugin_id", ctx.PluginID, "error", err)
	}
}

// DeliverDeepLink hands a parsed deep-link to the target plugin.
func (r *Registry) DeliverDeepLink(pluginID string, link protocol.DeepLinkContext) error {
	return r.SendToPlugin(pluginID, protocol.NewPluginDeepLink(link))
}

// handleRegister binds the session to a loaded plugin id, evicting any
// prior session registered under the same id.
func (r *Registry) handleRegister(s *session.Session, pluginID string) {
	r.mu.Lock()
	if _, ok := r.plugins[pluginID]; !ok {
		r.mu.Unlock()
		logger.Warn("registration for unknown plugin", "session_id", s.ID(), "plugin_id", pluginID)
		return
	}
	var evicted *session.Session
	if oldSessionID, ok := r.pluginSessions[pluginID]; ok && oldSessionID != s.ID() {
		evicted = r.sessions[oldSessionID]
		delete(r.sessionPlugins, oldSessionID)
	}
	r.pluginSessions[pluginID] = s.ID()
	r.sessionPlugins[s.ID()] = pluginID
	r.mu.Unlock()

	if evicted != nil {
		logger.Debug("evicting previous plugin session",
			"plugin_id", pluginID, "session_id", evicted.ID())
		evicted.Close()
	}

	s.Send(protocol.NewPluginRegistered(pluginID))
	logger.Info("plugin registered", "plugin_id", pluginID, "session_id", s.ID())
}

func (r *Registry) handleGetProperties(ctx context.Context, s *session.Session, pluginID string) {
	properties, err := r.store.GetPluginProperties(ctx, pluginID)
	if err != nil {
		logger.Error("cannot load plugin properties", "plugin_id", pluginID, "error", err)
		return
	}
	s.Send(protocol.NewPluginProperties(properties))
}

func (r *Registry) handleSetProperties(ctx context.Context, pluginID string, msg protocol.PluginClientMessage) {
	if err := r.store.SetPluginProperties(ctx, pluginID, msg.Properties, msg.Partial); err != nil {
		logger.Error("cannot persist plugin properties", "plugin_id", pluginID, "error", err)
	}
}

// handleSendToInspector relays a plugin message toward the inspector UI
// via the event bus. Context is required; the plugin id is stamped from
// the session binding, never trusted from the frame.
func (r *Registry) handleSendToInspector(pluginID string, msg protocol.PluginClientMessage) {
	if msg.Ctx == nil {
		logger.Warn("inspector message without context", "plugin_id", pluginID)
		return
	}
	ctx := *msg.Ctx
	ctx.PluginID = pluginID
	r.bus.Publish(events.TopicPluginMessage, InspectorMessage{Ctx: ctx, Message: msg.Message})
}

// handleSendToDisplay pushes a plugin message to the tile's device display.
func (r *Registry) handleSendToDisplay(pluginID string, msg protocol.PluginClientMessage) {
	if msg.Ctx == nil || msg.Ctx.DeviceID == "" {
		logger.Warn("display message without device context", "plugin_id", pluginID)
		return
	}
	ctx := *msg.Ctx
	ctx.PluginID = pluginID
	if r.devices == nil || !r.devices.SendToDevice(ctx.DeviceID, protocol.NewDeviceRecvFromPlugin(ctx, msg.Message)) {
		logger.Warn("dropping display message for offline device",
			"plugin_id", pluginID, "device_id", ctx.DeviceID)
	}
}

func (r *Registry) handleGetTileProperties(ctx context.Context, s *session.Session, pluginID, tileID string) {
	properties, err := r.tiles.GetProperties(ctx, tileID, pluginID)
	if err != nil {
		logger.Warn("plugin tile property read refused",
			"plugin_id", pluginID, "tile_id", tileID, "error", err)
		return
	}
	s.Send(protocol.NewPluginTileProperties(tileID, properties))
}

func (r *Registry) handleSetTileProperties(ctx context.Context, pluginID string, msg protocol.PluginClientMessage) {
	if err := r.tiles.UpdateProperties(ctx, msg.TileID, pluginID, msg.Properties, msg.Partial); err != nil {
		logger.Warn("plugin tile property write refused",
			"plugin_id", pluginID, "tile_id", msg.TileID, "error", err)
	}
}

func (r *Registry) handleSetTileIcon(ctx context.Context, pluginID string, msg protocol.PluginClientMessage) {
	if msg.Icon == nil {
		logger.Warn("tile icon update without icon", "plugin_id", pluginID, "tile_id", msg.TileID)
		return
	}
	if err := r.tiles.UpdateIcon(ctx, msg.TileID, pluginID, *msg.Icon, models.UpdateKindProgram); err != nil {
		logger.Warn("plugin tile icon update refused",
			"plugin_id", pluginID, "tile_id", msg.TileID, "error", err)
	}
}

func (r *Registry) handleSetTileLabel(ctx context.Context, pluginID string, msg protocol.PluginClientMessage) {
	if msg.Label == nil {
		logger.Warn("tile label update without label", "plugin_id", pluginID, "tile_id", msg.TileID)
		return
	}
	if err := r.tiles.UpdateLabel(ctx, msg.TileID, pluginID, *msg.Label, models.UpdateKindProgram); err != nil {
		logger.Warn("plugin tile label update refused",
			"plugin_id", pluginID, "tile_id", msg.TileID, "error", err)
	}
}

// handleGetVisibleTiles replies with the plugin's tiles on folders that
// connected devices are currently viewing.
func (r *Registry) handleGetVisibleTiles(ctx context.Context, s *session.Session, pluginID string) {
	var visible []*models.Tile
	if r.devices != nil {
		for _, folderID := range r.devices.VisibleFolderIDs(ctx) {
			folderTiles, err := r.store.ListTilesByFolder(ctx, folderID)
			if err != nil {
				logger.Warn("cannot list folder tiles", "folder_id", folderID, "error", err)
				continue
			}
			for _, tile := range folderTiles {
				if tile.PluginID == pluginID {
					visible = append(visible, tile)
				}
			}
		}
	}
	s.Send(protocol.NewPluginVisibleTiles(visible))
}

// registeredPlugin resolves the session's bound plugin id.
func (r *Registry) registeredPlugin(s *session.Session) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pluginID, ok := r.sessionPlugins[s.ID()]
	return pluginID, ok
}
