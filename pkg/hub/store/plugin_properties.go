package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tilepad/tilepad-server/pkg/hub/models"
)

// GetPluginProperties retrieves the property blob of a plugin. An unknown
// plugin id yields an empty object, not an error; plugins start with no
// persisted state.
func (s *Store) GetPluginProperties(ctx context.Context, pluginID string) (models.JSONObject, error) {
	var row models.PluginProperties
	err := s.db.WithContext(ctx).Where("plugin_id = ?", pluginID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.JSONObject{}, nil
		}
		return nil, err
	}
	if row.Properties == nil {
		return models.JSONObject{}, nil
	}
	return row.Properties, nil
}

// SetPluginProperties upserts the property blob of a plugin. A partial
// update merges top-level keys into the existing object; a full update
// replaces it.
func (s *Store) SetPluginProperties(ctx context.Context, pluginID string, properties models.JSONObject, partial bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.PluginProperties
		err := tx.Where("plugin_id = ?", pluginID).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = models.PluginProperties{PluginID: pluginID, Properties: properties.Clone()}
			return tx.Create(&row).Error
		case err != nil:
			return err
		}

		next := properties
		if partial {
			next = row.Properties.Merge(properties)
		}
		return tx.Model(&row).Update("properties", next).Error
	})
}
