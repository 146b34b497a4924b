package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Tile is a single cell of a device's grid UI, bound to exactly one plugin
// action and carrying per-instance settings.
//
// Config holds the presentation block (icon, label, user flags); Properties
// is a free-form object owned by the tile's plugin.
type Tile struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	FolderID   string     `gorm:"not null;size:36;index" json:"folder_id"`
	PluginID   string     `gorm:"not null;size:255" json:"plugin_id"`
	ActionID   string     `gorm:"not null;size:255" json:"action_id"`
	Row        int        `gorm:"not null;default:0" json:"row"`
	Column     int        `gorm:"column:col;not null;default:0" json:"column"`
	Order      int        `gorm:"column:order_index;default:0" json:"order"`
	Config     TileConfig `gorm:"type:text" json:"config"`
	Properties JSONObject `gorm:"type:text" json:"properties"`
}

// TableName returns the table name for Tile.
func (Tile) TableName() string {
	return "tiles"
}

// IconType discriminates the tile icon variants.
type IconType string

const (
	IconTypeNone     IconType = "none"
	IconTypePlugin   IconType = "plugin"
	IconTypeIconPack IconType = "icon_pack"
	IconTypeUploaded IconType = "uploaded"
	IconTypeURL      IconType = "url"
)

// TileIcon is the icon shown on a tile. Exactly one variant's fields are
// meaningful, selected by Type.
type TileIcon struct {
	Type IconType `json:"type"`

	// Plugin-provided icon: path relative to the plugin's asset directory.
	PluginID string `json:"plugin_id,omitempty"`
	Icon     string `json:"icon,omitempty"`

	// Icon pack entry.
	PackID string `json:"pack_id,omitempty"`
	Path   string `json:"path,omitempty"`

	// Uploaded file path (relative to the uploaded-icons directory) or
	// remote URL.
	Src string `json:"src,omitempty"`
}

// IsZero reports whether the icon is unset.
func (i TileIcon) IsZero() bool {
	return i.Type == "" || i.Type == IconTypeNone
}

// TileLabel is the text label rendered over a tile.
type TileLabel struct {
	Enabled bool   `json:"enabled"`
	Text    string `json:"text"`
	Size    int    `json:"size,omitempty"`
	Color   string `json:"color,omitempty"`
	Bold    bool   `json:"bold,omitempty"`
	Italic  bool   `json:"italic,omitempty"`
}

// UserFlags are sticky bits marking fields as user-authored. A set bit
// means plugin-side (Program) updates must not overwrite the field.
type UserFlags struct {
	Icon  bool `json:"icon"`
	Label bool `json:"label"`
}

// TileConfig is the presentation block of a tile.
type TileConfig struct {
	Icon        TileIcon   `json:"icon"`
	IconOptions JSONObject `json:"icon_options,omitempty"`
	Label       TileLabel  `json:"label"`
	UserFlags   UserFlags  `json:"user_flags"`
}

// Value implements driver.Valuer.
func (c TileConfig) Value() (driver.Value, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (c *TileConfig) Scan(value any) error {
	if value == nil {
		*c = TileConfig{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into TileConfig", value)
	}

	if len(data) == 0 {
		*c = TileConfig{}
		return nil
	}
	return json.Unmarshal(data, c)
}

// UpdateKind qualifies who authored a tile icon/label update and decides
// how the sticky user flags behave.
type UpdateKind string

const (
	// UpdateKindUser is a user-authored update; it applies and sets the
	// sticky flag (cleared again if the field empties).
	UpdateKindUser UpdateKind = "user"

	// UpdateKindProgram is a plugin-side update; it is silently ignored
	// when the sticky flag is set.
	UpdateKindProgram UpdateKind = "program"

	// UpdateKindReset applies the update and clears the sticky flag.
	UpdateKindReset UpdateKind = "reset"
)
