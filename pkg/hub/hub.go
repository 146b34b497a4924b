// Package hub wires the tilepad control plane together.
//
// The hub owns and coordinates:
//   - Store: persistent profiles, folders, tiles, devices and settings
//   - Devices: live device sessions and the approval lifecycle
//   - Plugins: loaded manifests and live plugin sessions
//   - Tiles: tile mutation with update propagation
//   - Inspector: UI-to-plugin message relay
//   - Actions: tile press dispatch
//   - Events: the hub-to-UI notification bus
//
// Usage:
//
//	h, err := hub.New(&hub.Options{Database: &store.Config{...}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close()
//	go h.Run(ctx)
package hub

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub/actions"
	"github.com/tilepad/tilepad-server/pkg/hub/devices"
	"github.com/tilepad/tilepad-server/pkg/hub/events"
	"github.com/tilepad/tilepad-server/pkg/hub/inspector"
	"github.com/tilepad/tilepad-server/pkg/hub/platform"
	"github.com/tilepad/tilepad-server/pkg/hub/plugins"
	"github.com/tilepad/tilepad-server/pkg/hub/protocol"
	"github.com/tilepad/tilepad-server/pkg/hub/store"
	"github.com/tilepad/tilepad-server/pkg/hub/tiles"
)

// DeepLinkScheme is the URL scheme the OS registers for the hub.
const DeepLinkScheme = "tilepad"

// deepLinkHost is the only deep-link host the hub routes.
const deepLinkHost = "deep-link"

// Options configures the Hub.
type Options struct {
	// Database configures the persistent store.
	Database *store.Config

	// Emitter receives UI events. Nil discards them.
	Emitter events.Emitter

	// Platform performs host-OS operations. Nil selects the native
	// implementation.
	Platform platform.Platform

	// PluginDirs are the manifest directories, core first.
	PluginDirs []string

	// UploadsDir holds user-uploaded tile icons.
	UploadsDir string

	// DevWatch reloads plugins when their manifest directories change.
	DevWatch bool
}

// Hub is the assembled control plane.
type Hub struct {
	store     *store.Store
	bus       *events.Bus
	devices   *devices.Registry
	plugins   *plugins.Registry
	tiles     *tiles.Service
	inspector *inspector.Bridge
	actions   *actions.Dispatcher
	platform  platform.Platform

	devWatch bool
}

// New assembles a hub. Call Close when done and Run to start the
// background workers.
func New(opts *Options) (*Hub, error) {
	if opts == nil {
		opts = &Options{}
	}
	plat := opts.Platform
	if plat == nil {
		plat = platform.New()
	}

	st, err := store.New(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	bus := events.NewBus(opts.Emitter)
	deviceRegistry := devices.NewRegistry(st, bus)
	tileService := tiles.NewService(st, deviceRegistry, opts.UploadsDir)
	pluginRegistry := plugins.NewRegistry(st, bus, tileService, plat, opts.PluginDirs...)
	bridge := inspector.NewBridge(pluginRegistry, bus)
	dispatcher := actions.NewDispatcher(st, pluginRegistry, deviceRegistry, plat)

	deviceRegistry.SetDispatcher(dispatcher)
	deviceRegistry.SetPluginForwarder(pluginRegistry)
	pluginRegistry.SetDeviceSender(deviceRegistry)

	return &Hub{
		store:     st,
		bus:       bus,
		devices:   deviceRegistry,
		plugins:   pluginRegistry,
		tiles:     tileService,
		inspector: bridge,
		actions:   dispatcher,
		platform:  plat,
		devWatch:  opts.DevWatch,
	}, nil
}

// Run drives the background workers until ctx is cancelled: the event bus
// drain loop, the folder refresh worker and, in developer mode, the plugin
// watcher.
func (h *Hub) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		h.bus.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		h.devices.Run(ctx)
	}()

	if h.devWatch {
		watcher, err := plugins.NewWatcher(h.plugins)
		if err != nil {
			logger.Warn("plugin watcher unavailable", "error", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				watcher.Run(ctx)
			}()
		}
	}

	wg.Wait()
}

// Store returns the persistent store.
func (h *Hub) Store() *store.Store { return h.store }

// Devices returns the device registry.
func (h *Hub) Devices() *devices.Registry { return h.devices }

// Plugins returns the plugin registry.
func (h *Hub) Plugins() *plugins.Registry { return h.plugins }

// Tiles returns the tile service.
func (h *Hub) Tiles() *tiles.Service { return h.tiles }

// Inspector returns the inspector bridge.
func (h *Hub) Inspector() *inspector.Bridge { return h.inspector }

// Bus returns the event bus.
func (h *Hub) Bus() *events.Bus { return h.bus }

// DeleteFolder deletes a folder and pushes the resulting view to every
// device that was reparented onto the profile's default folder.
func (h *Hub) DeleteFolder(ctx context.Context, folderID string) error {
	moved, _, err := h.store.DeleteFolder(ctx, folderID)
	if err != nil {
		return err
	}
	for _, deviceID := range moved {
		h.devices.RefreshDevice(ctx, deviceID)
	}
	return nil
}

// DeleteProfile deletes a profile and pushes the default profile's view to
// every device that was attached to it.
func (h *Hub) DeleteProfile(ctx context.Context, profileID string) error {
	moved, err := h.store.DeleteProfile(ctx, profileID)
	if err != nil {
		return err
	}
	for _, deviceID := range moved {
		h.devices.RefreshDevice(ctx, deviceID)
	}
	return nil
}

// HandleDeepLink parses a tilepad:// URL and delivers it to the plugin
// named by the first path segment. Unroutable links are dropped with a
// warning; the OS hands the hub whatever the user clicked.
func (h *Hub) HandleDeepLink(raw string) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme != DeepLinkScheme || parsed.Host != deepLinkHost {
		logger.Warn("ignoring malformed deep-link", "url", raw)
		return
	}

	path := strings.TrimPrefix(parsed.Path, "/")
	pluginID, rest, _ := strings.Cut(path, "/")
	if pluginID == "" {
		logger.Warn("deep-link without plugin id", "url", raw)
		return
	}

	link := protocol.DeepLinkContext{
		URL:      raw,
		Host:     parsed.Host,
		Path:     "/" + rest,
		Query:    parsed.RawQuery,
		Fragment: parsed.Fragment,
	}
	if err := h.plugins.DeliverDeepLink(pluginID, link); err != nil {
		logger.Warn("dropping deep-link for offline plugin", "plugin_id", pluginID)
	}
}

// Close releases the hub's resources.
func (h *Hub) Close() error {
	return h.store.Close()
}
