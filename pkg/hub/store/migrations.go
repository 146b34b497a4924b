package store

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tilepad/tilepad-server/pkg/hub/models"
)

// migration is a named, once-only schema or data migration. Migrations are
// applied in lexical order of their names; applied names are recorded in
// the migrations table.
type migration struct {
	Name string
	Run  func(tx *gorm.DB) error
}

func migrations() []migration {
	return []migration{
		{
			Name: "0001_seed_default_profile",
			Run: func(tx *gorm.DB) error {
				var count int64
				if err := tx.Model(&models.Profile{}).Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					return nil
				}
				profile := &models.Profile{
					ID:      uuid.New().String(),
					Name:    "Default",
					Default: true,
					Active:  true,
					Config:  models.JSONObject{},
				}
				if err := tx.Create(profile).Error; err != nil {
					return err
				}
				folder := &models.Folder{
					ID:        uuid.New().String(),
					Name:      "Default",
					ProfileID: profile.ID,
					Default:   true,
					Config:    models.JSONObject{},
				}
				return tx.Create(folder).Error
			},
		},
		{
			Name: "0002_seed_settings",
			Run: func(tx *gorm.DB) error {
				var count int64
				if err := tx.Model(&models.Settings{}).Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					return nil
				}
				settings := &models.Settings{ID: 1}
				settings.ApplyDefaults(defaultHostname())
				return tx.Create(settings).Error
			},
		},
	}
}

// applyMigrations runs every migration that has not been applied yet, in
// lexical name order, each inside its own transaction.
func (s *Store) applyMigrations() error {
	pending := migrations()
	sort.Slice(pending, func(i, j int) bool { return pending[i].Name < pending[j].Name })

	for _, m := range pending {
		var count int64
		if err := s.db.Model(&models.Migration{}).Where("name = ?", m.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		if err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := m.Run(tx); err != nil {
				return err
			}
			return tx.Create(&models.Migration{Name: m.Name}).Error
		}); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
	}
	return nil
}
