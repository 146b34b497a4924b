package models

// Profile is a top-level grouping of folders; the user's workspace.
//
// Exactly one profile carries the Default flag. The default profile cannot
// be deleted; deleting another profile relocates its devices to the
// default profile's default folder.
type Profile struct {
	ID      string     `gorm:"primaryKey;size:36" json:"id"`
	Name    string     `gorm:"not null;size:255" json:"name"`
	Default bool       `gorm:"default:false" json:"default"`
	Active  bool       `gorm:"default:false" json:"active"`
	Order   int        `gorm:"column:order_index;default:0" json:"order"`
	Config  JSONObject `gorm:"type:text" json:"config"`
}

// TableName returns the table name for Profile.
func (Profile) TableName() string {
	return "profiles"
}

// Folder is an ordered 2D layout of tiles belonging to a profile.
//
// Each profile has exactly one default folder; the default folder cannot
// be deleted. Deleting another folder reparents its devices to the
// profile's default folder.
type Folder struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	Name      string     `gorm:"not null;size:255" json:"name"`
	ProfileID string     `gorm:"not null;size:36;index" json:"profile_id"`
	Default   bool       `gorm:"default:false" json:"default"`
	Order     int        `gorm:"column:order_index;default:0" json:"order"`
	Config    JSONObject `gorm:"type:text" json:"config"`
}

// TableName returns the table name for Folder.
func (Folder) TableName() string {
	return "folders"
}
