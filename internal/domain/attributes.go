package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Attributes is the open key/value map carried by a message. It is stored as
// a JSON document; a nil map is stored as NULL.
type Attributes map[string]any

// Value implements driver.Valuer.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(a))
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *Attributes) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan attributes: unsupported type %T", src)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*a = nil
		return nil
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("unmarshal attributes: %w", err)
	}
	*a = m
	return nil
}
