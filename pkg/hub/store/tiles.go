package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/tilepad/tilepad-server/pkg/hub/models"
)

// GetTile retrieves a tile by id.
func (s *Store) GetTile(ctx context.Context, id string) (*models.Tile, error) {
	return getByField[models.Tile](s.db, ctx, "id", id, models.ErrTileNotFound)
}

// ListTilesByFolder retrieves the tiles of a folder in (row, column) order.
func (s *Store) ListTilesByFolder(ctx context.Context, folderID string) ([]*models.Tile, error) {
	tiles := []*models.Tile{}
	if err := s.db.WithContext(ctx).
		Where("folder_id = ?", folderID).
		Order("row ASC, col ASC").
		Find(&tiles).Error; err != nil {
		return nil, err
	}
	return tiles, nil
}

// ListTilesByPlugin retrieves every tile bound to a plugin, across folders.
func (s *Store) ListTilesByPlugin(ctx context.Context, pluginID string) ([]*models.Tile, error) {
	tiles := []*models.Tile{}
	if err := s.db.WithContext(ctx).
		Where("plugin_id = ?", pluginID).
		Find(&tiles).Error; err != nil {
		return nil, err
	}
	return tiles, nil
}

// CreateTile creates a tile under an existing folder.
func (s *Store) CreateTile(ctx context.Context, tile *models.Tile) (string, error) {
	var id string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var folder models.Folder
		if err := tx.Where("id = ?", tile.FolderID).First(&folder).Error; err != nil {
			return convertNotFoundError(err, models.ErrFolderNotFound)
		}
		var err error
		id, err = createWithID(tx, ctx, tile, tile.ID, func(t *models.Tile, id string) { t.ID = id }, nil)
		return err
	})
	return id, err
}

// UpdateTileConfig replaces a tile's presentation block.
func (s *Store) UpdateTileConfig(ctx context.Context, id string, config models.TileConfig) error {
	result := s.db.WithContext(ctx).
		Model(&models.Tile{}).
		Where("id = ?", id).
		Update("config", config)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrTileNotFound
	}
	return nil
}

// UpdateTileProperties replaces a tile's plugin-owned properties object.
func (s *Store) UpdateTileProperties(ctx context.Context, id string, properties models.JSONObject) error {
	result := s.db.WithContext(ctx).
		Model(&models.Tile{}).
		Where("id = ?", id).
		Update("properties", properties)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrTileNotFound
	}
	return nil
}

// UpdateTilePosition moves a tile within its folder's grid.
func (s *Store) UpdateTilePosition(ctx context.Context, id string, row, column int) error {
	result := s.db.WithContext(ctx).
		Model(&models.Tile{}).
		Where("id = ?", id).
		Updates(map[string]any{"row": row, "col": column})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrTileNotFound
	}
	return nil
}

// DeleteTile removes a tile.
func (s *Store) DeleteTile(ctx context.Context, id string) error {
	return deleteByID[models.Tile](s.db, ctx, id, models.ErrTileNotFound)
}

// CountTilesWithUploadedIcon counts tiles whose icon references the given
// uploaded file. Used to decide whether an uploaded icon file may be
// removed after an icon change.
func (s *Store) CountTilesWithUploadedIcon(ctx context.Context, src string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Tile{}).
		Where("config LIKE ?", "%\"type\":\""+string(models.IconTypeUploaded)+"\"%").
		Where("config LIKE ?", "%\""+src+"\"%").
		Count(&count).Error
	return count, err
}
