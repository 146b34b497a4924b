// Package tiles is the single point of truth for tile mutation.
//
// Every mutation is authorized against the requesting plugin (when one is
// present), applies the sticky user-flag rules for icon and label, and
// pushes a coalesced folder refresh to the devices viewing the tile's
// folder.
package tiles

import (
	"context"
	"os"
	"path/filepath"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub/metrics"
	"github.com/tilepad/tilepad-server/pkg/hub/models"
	"github.com/tilepad/tilepad-server/pkg/hub/store"
)

// Notifier schedules a folder refresh broadcast. Implemented by the device
// registry.
type Notifier interface {
	BackgroundUpdateFolder(folderID string)
}

// Service owns tile CRUD and propagation.
type Service struct {
	store      *store.Store
	notifier   Notifier
	uploadsDir string
}

// NewService creates the tile service. uploadsDir is the directory holding
// user-uploaded icons; it may be empty in tests, disabling cleanup.
func NewService(st *store.Store, notifier Notifier, uploadsDir string) *Service {
	return &Service{store: st, notifier: notifier, uploadsDir: uploadsDir}
}

// Get retrieves a tile without authorization. UI-side callers only.
func (s *Service) Get(ctx context.Context, tileID string) (*models.Tile, error) {
	return s.store.GetTile(ctx, tileID)
}

// ListByFolder retrieves a folder's tiles in (row, column) order.
func (s *Service) ListByFolder(ctx context.Context, folderID string) ([]*models.Tile, error) {
	return s.store.ListTilesByFolder(ctx, folderID)
}

// Create creates a tile and refreshes its folder.
func (s *Service) Create(ctx context.Context, tile *models.Tile) (string, error) {
	id, err := s.store.CreateTile(ctx, tile)
	if err != nil {
		return "", err
	}
	s.notifier.BackgroundUpdateFolder(tile.FolderID)
	return id, nil
}

// Move repositions a tile within its folder's grid.
func (s *Service) Move(ctx context.Context, tileID string, row, column int) error {
	tile, err := s.store.GetTile(ctx, tileID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateTilePosition(ctx, tileID, row, column); err != nil {
		return err
	}
	s.notifier.BackgroundUpdateFolder(tile.FolderID)
	return nil
}

// Delete removes a tile, refreshes its folder and releases its uploaded
// icon file when nothing references it anymore.
func (s *Service) Delete(ctx context.Context, tileID string) error {
	tile, err := s.store.GetTile(ctx, tileID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTile(ctx, tileID); err != nil {
		return err
	}
	s.notifier.BackgroundUpdateFolder(tile.FolderID)
	s.cleanupUploadedIcon(ctx, tile.Config.Icon)
	return nil
}

// GetProperties returns a tile's plugin-owned properties.
// requestingPluginID, when non-empty, must match the tile's plugin.
func (s *Service) GetProperties(ctx context.Context, tileID, requestingPluginID string) (models.JSONObject, error) {
	tile, err := s.store.GetTile(ctx, tileID)
	if err != nil {
		return nil, err
	}
	if err := authorize(tile, requestingPluginID); err != nil {
		return nil, err
	}
	if tile.Properties == nil {
		return models.JSONObject{}, nil
	}
	return tile.Properties, nil
}

// UpdateProperties replaces or (partial) merges a tile's properties.
func (s *Service) UpdateProperties(ctx context.Context, tileID, requestingPluginID string, properties models.JSONObject, partial bool) error {
	tile, err := s.store.GetTile(ctx, tileID)
	if err != nil {
		return err
	}
	if err := authorize(tile, requestingPluginID); err != nil {
		return err
	}

	next := properties
	if partial {
		next = tile.Properties.Merge(properties)
	}
	if err := s.store.UpdateTileProperties(ctx, tileID, next); err != nil {
		return err
	}
	metrics.TileUpdates.WithLabelValues("properties").Inc()
	s.notifier.BackgroundUpdateFolder(tile.FolderID)
	return nil
}

// UpdateIcon applies an icon change subject to the sticky user flag:
// Program updates are silently ignored while the flag is set, User updates
// set the flag (cleared again when the icon empties), Reset clears it.
func (s *Service) UpdateIcon(ctx context.Context, tileID, requestingPluginID string, icon models.TileIcon, kind models.UpdateKind) error {
	tile, err := s.store.GetTile(ctx, tileID)
	if err != nil {
		return err
	}
	if err := authorize(tile, requestingPluginID); err != nil {
		return err
	}

	if kind == models.UpdateKindProgram && tile.Config.UserFlags.Icon {
		return nil
	}

	previous := tile.Config.Icon
	config := tile.Config
	config.Icon = icon
	switch kind {
	case models.UpdateKindUser:
		config.UserFlags.Icon = !icon.IsZero()
	case models.UpdateKindReset:
		config.UserFlags.Icon = false
	}

	if err := s.store.UpdateTileConfig(ctx, tileID, config); err != nil {
		return err
	}
	metrics.TileUpdates.WithLabelValues("icon").Inc()
	s.notifier.BackgroundUpdateFolder(tile.FolderID)

	if previous.Type == models.IconTypeUploaded && previous.Src != icon.Src {
		s.cleanupUploadedIcon(ctx, previous)
	}
	return nil
}

// UpdateLabel applies a label change under the same sticky rules as icons.
// The user flag is true only while the label text is non-empty.
func (s *Service) UpdateLabel(ctx context.Context, tileID, requestingPluginID string, label models.TileLabel, kind models.UpdateKind) error {
	tile, err := s.store.GetTile(ctx, tileID)
	if err != nil {
		return err
	}
	if err := authorize(tile, requestingPluginID); err != nil {
		return err
	}

	if kind == models.UpdateKindProgram && tile.Config.UserFlags.Label {
		return nil
	}

	config := tile.Config
	config.Label = label
	switch kind {
	case models.UpdateKindUser:
		config.UserFlags.Label = label.Text != ""
	case models.UpdateKindReset:
		config.UserFlags.Label = false
	}

	if err := s.store.UpdateTileConfig(ctx, tileID, config); err != nil {
		return err
	}
	metrics.TileUpdates.WithLabelValues("label").Inc()
	s.notifier.BackgroundUpdateFolder(tile.FolderID)
	return nil
}

// UpdateIconOptions replaces a tile's icon rendering options.
func (s *Service) UpdateIconOptions(ctx context.Context, tileID, requestingPluginID string, options models.JSONObject) error {
	tile, err := s.store.GetTile(ctx, tileID)
	if err != nil {
		return err
	}
	if err := authorize(tile, requestingPluginID); err != nil {
		return err
	}

	config := tile.Config
	config.IconOptions = options
	if err := s.store.UpdateTileConfig(ctx, tileID, config); err != nil {
		return err
	}
	metrics.TileUpdates.WithLabelValues("icon_options").Inc()
	s.notifier.BackgroundUpdateFolder(tile.FolderID)
	return nil
}

// authorize fails with ErrForbidden when a plugin touches a tile owned by
// another plugin. An empty requestingPluginID marks a trusted (UI) caller.
func authorize(tile *models.Tile, requestingPluginID string) error {
	if requestingPluginID != "" && requestingPluginID != tile.PluginID {
		return models.ErrForbidden
	}
	return nil
}

// cleanupUploadedIcon removes an uploaded icon file once no tile
// references it. Best-effort; failures are logged.
func (s *Service) cleanupUploadedIcon(ctx context.Context, icon models.TileIcon) {
	if s.uploadsDir == "" || icon.Type != models.IconTypeUploaded || icon.Src == "" {
		return
	}
	count, err := s.store.CountTilesWithUploadedIcon(ctx, icon.Src)
	if err != nil {
		logger.Warn("cannot count uploaded icon references", "src", icon.Src, "error", err)
		return
	}
	if count > 0 {
		return
	}

	path := filepath.Join(s.uploadsDir, filepath.Clean("/"+icon.Src))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to delete unreferenced uploaded icon", "path", path, "error", err)
	}
}
