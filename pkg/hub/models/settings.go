package models

import "time"

// DefaultPort is the listen port used until the user changes it.
const DefaultPort = 59371

// Settings is the singleton configuration row (id = 1).
//
// Defaults are populated on first read so the UI always sees a complete
// object. Port stays 0 until the user picks one; 0 means the configured
// port applies.
type Settings struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	DeviceName    string    `gorm:"size:255" json:"device_name"`
	Language      string    `gorm:"size:32" json:"language"`
	DeveloperMode bool      `gorm:"default:false" json:"developer_mode"`
	Port          int       `gorm:"default:0" json:"port"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Settings.
func (Settings) TableName() string {
	return "settings"
}

// ApplyDefaults fills unset fields with their defaults.
func (s *Settings) ApplyDefaults(hostname string) {
	if s.ID == 0 {
		s.ID = 1
	}
	if s.DeviceName == "" {
		s.DeviceName = hostname
	}
	if s.Language == "" {
		s.Language = "en"
	}
}

// PluginProperties is the persisted per-plugin property blob, keyed by the
// plugin's manifest id.
type PluginProperties struct {
	PluginID   string     `gorm:"primaryKey;size:255" json:"plugin_id"`
	Properties JSONObject `gorm:"type:text" json:"properties"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for PluginProperties.
func (PluginProperties) TableName() string {
	return "plugin_properties"
}

// Migration records a named migration that has been applied.
type Migration struct {
	Name      string    `gorm:"primaryKey;size:255" json:"name"`
	AppliedAt time.Time `gorm:"autoCreateTime" json:"applied_at"`
}

// TableName returns the table name for Migration.
func (Migration) TableName() string {
	return "migrations"
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Profile{},
		&Folder{},
		&Tile{},
		&Device{},
		&PluginProperties{},
		&Settings{},
		&Migration{},
	}
}
