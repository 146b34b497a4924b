package models

import "time"

// Device is a remote controller (phone/tablet) approved to connect.
//
// The access token is the per-device bearer secret issued at approval time.
// It is unique across devices and never serialized towards the UI.
// (ProfileID, FolderID) always reference an existing folder whose profile
// matches the device's.
type Device struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Name            string     `gorm:"not null;size:255" json:"name"`
	AccessToken     string     `gorm:"uniqueIndex;not null;size:64" json:"-"`
	ProfileID       string     `gorm:"not null;size:36;index" json:"profile_id"`
	FolderID        string     `gorm:"not null;size:36;index" json:"folder_id"`
	Order           int        `gorm:"column:order_index;default:0" json:"order"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
}

// TableName returns the table name for Device.
func (Device) TableName() string {
	return "devices"
}
