package models

import "errors"

// Domain errors returned by the store. HTTP handlers and protocol handlers
// map these to their own negative responses; gorm errors never cross the
// store boundary.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrFolderNotFound  = errors.New("folder not found")
	ErrTileNotFound    = errors.New("tile not found")
	ErrDeviceNotFound  = errors.New("device not found")

	// ErrDeleteDefault is returned when deleting a default profile or folder.
	ErrDeleteDefault = errors.New("cannot delete the default entry")

	// ErrProfileMismatch is returned when a folder does not belong to the
	// profile a device is attached to.
	ErrProfileMismatch = errors.New("folder does not belong to profile")

	// ErrForbidden is returned when a plugin touches a tile owned by a
	// different plugin.
	ErrForbidden = errors.New("plugin does not own this tile")
)
