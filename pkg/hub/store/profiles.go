package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/tilepad/tilepad-server/pkg/hub/models"
)

// GetProfile retrieves a profile by id.
func (s *Store) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	return getByField[models.Profile](s.db, ctx, "id", id, models.ErrProfileNotFound)
}

// GetDefaultProfile retrieves the profile carrying the default flag.
func (s *Store) GetDefaultProfile(ctx context.Context) (*models.Profile, error) {
	return getByField[models.Profile](s.db, ctx, "`default`", true, models.ErrProfileNotFound)
}

// ListProfiles retrieves all profiles in order-index order.
func (s *Store) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	return listAll[models.Profile](s.db, ctx, "order_index ASC")
}

// CreateProfile creates a profile. When the profile is flagged default the
// flag is cleared from every other profile in the same transaction.
func (s *Store) CreateProfile(ctx context.Context, profile *models.Profile) (string, error) {
	var id string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if profile.Default {
			if err := tx.Model(&models.Profile{}).Where("`default` = ?", true).Update("default", false).Error; err != nil {
				return err
			}
		}
		var err error
		id, err = createWithID(tx, ctx, profile, profile.ID, func(p *models.Profile, id string) { p.ID = id }, nil)
		return err
	})
	return id, err
}

// UpdateProfile updates a profile's mutable fields.
func (s *Store) UpdateProfile(ctx context.Context, profile *models.Profile) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Profile
		if err := tx.Where("id = ?", profile.ID).First(&existing).Error; err != nil {
			return convertNotFoundError(err, models.ErrProfileNotFound)
		}
		if profile.Default && !existing.Default {
			if err := tx.Model(&models.Profile{}).Where("`default` = ?", true).Update("default", false).Error; err != nil {
				return err
			}
		}
		return tx.Model(&existing).
			Select("Name", "Default", "Active", "Order", "Config").
			Updates(profile).Error
	})
}

// DeleteProfile deletes a non-default profile along with its folders and
// tiles. Devices attached to the profile are relocated to the default
// profile's default folder; their ids are returned so live sessions can be
// refreshed.
func (s *Store) DeleteProfile(ctx context.Context, id string) ([]string, error) {
	var movedDevices []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.Profile
		if err := tx.Where("id = ?", id).First(&profile).Error; err != nil {
			return convertNotFoundError(err, models.ErrProfileNotFound)
		}
		if profile.Default {
			return models.ErrDeleteDefault
		}

		var defaultProfile models.Profile
		if err := tx.Where("`default` = ?", true).First(&defaultProfile).Error; err != nil {
			return convertNotFoundError(err, models.ErrProfileNotFound)
		}
		var defaultFolder models.Folder
		if err := tx.Where("profile_id = ? AND `default` = ?", defaultProfile.ID, true).First(&defaultFolder).Error; err != nil {
			return convertNotFoundError(err, models.ErrFolderNotFound)
		}

		var devices []models.Device
		if err := tx.Where("profile_id = ?", id).Find(&devices).Error; err != nil {
			return err
		}
		for _, d := range devices {
			movedDevices = append(movedDevices, d.ID)
		}
		if len(devices) > 0 {
			if err := tx.Model(&models.Device{}).Where("profile_id = ?", id).
				Updates(map[string]any{"profile_id": defaultProfile.ID, "folder_id": defaultFolder.ID}).Error; err != nil {
				return err
			}
		}

		// Tiles are owned through folders; delete both.
		if err := tx.Where("folder_id IN (?)",
			tx.Model(&models.Folder{}).Select("id").Where("profile_id = ?", id),
		).Delete(&models.Tile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("profile_id = ?", id).Delete(&models.Folder{}).Error; err != nil {
			return err
		}
		return tx.Delete(&profile).Error
	})
	if err != nil {
		return nil, err
	}
	return movedDevices, nil
}

// GetFolder retrieves a folder by id.
func (s *Store) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	return getByField[models.Folder](s.db, ctx, "id", id, models.ErrFolderNotFound)
}

// GetDefaultFolder retrieves the default folder of a profile.
func (s *Store) GetDefaultFolder(ctx context.Context, profileID string) (*models.Folder, error) {
	var folder models.Folder
	if err := s.db.WithContext(ctx).
		Where("profile_id = ? AND `default` = ?", profileID, true).
		First(&folder).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrFolderNotFound)
	}
	return &folder, nil
}

// ListFolders retrieves the folders of a profile in order-index order.
func (s *Store) ListFolders(ctx context.Context, profileID string) ([]*models.Folder, error) {
	folders := []*models.Folder{}
	if err := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("order_index ASC").
		Find(&folders).Error; err != nil {
		return nil, err
	}
	return folders, nil
}

// CreateFolder creates a folder under an existing profile. A default
// folder displaces the profile's previous default.
func (s *Store) CreateFolder(ctx context.Context, folder *models.Folder) (string, error) {
	var id string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.Profile
		if err := tx.Where("id = ?", folder.ProfileID).First(&profile).Error; err != nil {
			return convertNotFoundError(err, models.ErrProfileNotFound)
		}
		if folder.Default {
			if err := tx.Model(&models.Folder{}).
				Where("profile_id = ? AND `default` = ?", folder.ProfileID, true).
				Update("default", false).Error; err != nil {
				return err
			}
		}
		var err error
		id, err = createWithID(tx, ctx, folder, folder.ID, func(f *models.Folder, id string) { f.ID = id }, nil)
		return err
	})
	return id, err
}

// UpdateFolder updates a folder's mutable fields.
func (s *Store) UpdateFolder(ctx context.Context, folder *models.Folder) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Folder
		if err := tx.Where("id = ?", folder.ID).First(&existing).Error; err != nil {
			return convertNotFoundError(err, models.ErrFolderNotFound)
		}
		if folder.Default && !existing.Default {
			if err := tx.Model(&models.Folder{}).
				Where("profile_id = ? AND `default` = ?", existing.ProfileID, true).
				Update("default", false).Error; err != nil {
				return err
			}
		}
		return tx.Model(&existing).
			Select("Name", "Default", "Order", "Config").
			Updates(folder).Error
	})
}

// DeleteFolder deletes a non-default folder and its tiles. Devices viewing
// the folder are reparented to the profile's default folder; their ids and
// the default folder id are returned so live sessions can be refreshed.
func (s *Store) DeleteFolder(ctx context.Context, id string) (movedDevices []string, newFolderID string, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var folder models.Folder
		if err := tx.Where("id = ?", id).First(&folder).Error; err != nil {
			return convertNotFoundError(err, models.ErrFolderNotFound)
		}
		if folder.Default {
			return models.ErrDeleteDefault
		}

		var defaultFolder models.Folder
		if err := tx.Where("profile_id = ? AND `default` = ?", folder.ProfileID, true).
			First(&defaultFolder).Error; err != nil {
			return convertNotFoundError(err, models.ErrFolderNotFound)
		}
		newFolderID = defaultFolder.ID

		var devices []models.Device
		if err := tx.Where("folder_id = ?", id).Find(&devices).Error; err != nil {
			return err
		}
		for _, d := range devices {
			movedDevices = append(movedDevices, d.ID)
		}
		if len(devices) > 0 {
			if err := tx.Model(&models.Device{}).Where("folder_id = ?", id).
				Update("folder_id", defaultFolder.ID).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("folder_id = ?", id).Delete(&models.Tile{}).Error; err != nil {
			return err
		}
		return tx.Delete(&folder).Error
	})
	if err != nil {
		return nil, "", err
	}
	return movedDevices, newFolderID, nil
}
