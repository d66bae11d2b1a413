// Package models contains domain types for protoforge.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Project groups the generated artifacts for one product idea.
type Project struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Context returns the text used as project context in generation prompts.
func (p *Project) Context() string {
	if p.Description == "" {
		return p.Name
	}
	return p.Name + "\n\n" + p.Description
}

// JSONBMap is a free-form JSON object stored in a PostgreSQL JSONB column.
type JSONBMap map[string]any

// Value implements driver.Valuer for database serialization.
func (j JSONBMap) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner. NULL becomes nil so "no content" survives a round trip.
func (j *JSONBMap) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		if len(v) == 0 || string(v) == "null" {
			*j = nil
			return nil
		}
		return json.Unmarshal(v, j)
	case string:
		return j.Scan([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into JSONBMap", value)
	}
}
