package store

import (
	"context"
	"errors"
	"os"

	"gorm.io/gorm"

	"github.com/tilepad/tilepad-server/pkg/hub/models"
)

func defaultHostname() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "Tilepad"
	}
	return hostname
}

// GetSettings retrieves the singleton settings row, creating it with
// defaults on first read.
func (s *Store) GetSettings(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", 1).First(&settings).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		settings = models.Settings{ID: 1}
		settings.ApplyDefaults(defaultHostname())
		return tx.Create(&settings).Error
	})
	if err != nil {
		return nil, err
	}
	// Rows created before new fields were added may carry zero values.
	settings.ApplyDefaults(defaultHostname())
	return &settings, nil
}

// UpdateSettings replaces the mutable fields of the settings row.
func (s *Store) UpdateSettings(ctx context.Context, settings *models.Settings) error {
	settings.ID = 1
	settings.ApplyDefaults(defaultHostname())
	return s.db.WithContext(ctx).
		Model(&models.Settings{ID: 1}).
		Select("DeviceName", "Language", "DeveloperMode", "Port").
		Updates(settings).Error
}
