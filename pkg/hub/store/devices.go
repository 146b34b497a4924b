package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tilepad/tilepad-server/pkg/hub/models"
)

// GetDevice retrieves a device by id.
func (s *Store) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	return getByField[models.Device](s.db, ctx, "id", id, models.ErrDeviceNotFound)
}

// GetDeviceByAccessToken retrieves a device by its access token.
func (s *Store) GetDeviceByAccessToken(ctx context.Context, token string) (*models.Device, error) {
	return getByField[models.Device](s.db, ctx, "access_token", token, models.ErrDeviceNotFound)
}

// ListDevices retrieves all devices in order-index order.
func (s *Store) ListDevices(ctx context.Context) ([]*models.Device, error) {
	return listAll[models.Device](s.db, ctx, "order_index ASC")
}

// CreateDevice mints a device row. When no profile/folder is set the
// device is attached to the default profile's default folder.
func (s *Store) CreateDevice(ctx context.Context, device *models.Device) (string, error) {
	var id string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if device.ProfileID == "" || device.FolderID == "" {
			var profile models.Profile
			if err := tx.Where("`default` = ?", true).First(&profile).Error; err != nil {
				return convertNotFoundError(err, models.ErrProfileNotFound)
			}
			var folder models.Folder
			if err := tx.Where("profile_id = ? AND `default` = ?", profile.ID, true).
				First(&folder).Error; err != nil {
				return convertNotFoundError(err, models.ErrFolderNotFound)
			}
			device.ProfileID = profile.ID
			device.FolderID = folder.ID
		}
		var err error
		id, err = createWithID(tx, ctx, device, device.ID, func(d *models.Device, id string) { d.ID = id }, nil)
		return err
	})
	return id, err
}

// DeleteDevice removes a device row.
func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	return deleteByID[models.Device](s.db, ctx, id, models.ErrDeviceNotFound)
}

// TouchDeviceConnected records the time a device last connected.
// Last writer wins; callers serialize through the device registry.
func (s *Store) TouchDeviceConnected(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", id).
		Update("last_connected_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrDeviceNotFound
	}
	return nil
}

// SetDeviceFolder moves a device to another folder within its current
// profile. Fails with ErrProfileMismatch if the folder belongs elsewhere.
func (s *Store) SetDeviceFolder(ctx context.Context, deviceID, folderID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var device models.Device
		if err := tx.Where("id = ?", deviceID).First(&device).Error; err != nil {
			return convertNotFoundError(err, models.ErrDeviceNotFound)
		}
		var folder models.Folder
		if err := tx.Where("id = ?", folderID).First(&folder).Error; err != nil {
			return convertNotFoundError(err, models.ErrFolderNotFound)
		}
		if folder.ProfileID != device.ProfileID {
			return models.ErrProfileMismatch
		}
		return tx.Model(&device).Update("folder_id", folderID).Error
	})
}

// SetDeviceProfile moves a device to another profile, attaching it to that
// profile's default folder.
func (s *Store) SetDeviceProfile(ctx context.Context, deviceID, profileID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var device models.Device
		if err := tx.Where("id = ?", deviceID).First(&device).Error; err != nil {
			return convertNotFoundError(err, models.ErrDeviceNotFound)
		}
		var folder models.Folder
		if err := tx.Where("profile_id = ? AND `default` = ?", profileID, true).
			First(&folder).Error; err != nil {
			return convertNotFoundError(err, models.ErrFolderNotFound)
		}
		return tx.Model(&device).
			Updates(map[string]any{"profile_id": profileID, "folder_id": folder.ID}).Error
	})
}
