package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONObject is a free-form JSON object stored as a TEXT column.
//
// Tile properties, folder/profile config and plugin properties are opaque
// to the hub; they are carried verbatim between the store, the UI and
// plugins. A nil JSONObject round-trips as an empty object.
type JSONObject map[string]any

// Value implements driver.Valuer.
func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	data, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (j *JSONObject) Scan(value any) error {
	if value == nil {
		*j = JSONObject{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONObject", value)
	}

	if len(data) == 0 {
		*j = JSONObject{}
		return nil
	}
	return json.Unmarshal(data, j)
}

// Merge overwrites top-level keys of j with those of other and returns the
// result. Used for partial property updates.
func (j JSONObject) Merge(other JSONObject) JSONObject {
	merged := make(JSONObject, len(j)+len(other))
	for k, v := range j {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy of the object.
func (j JSONObject) Clone() JSONObject {
	if j == nil {
		return JSONObject{}
	}
	cp := make(JSONObject, len(j))
	for k, v := range j {
		cp[k] = v
	}
	return cp
}
