package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExtractionSchema is a user-defined schema describing the structured
// output to extract. Definition holds the field-tree JSON in the internal
// builder format ({"fields": [...]}).
type ExtractionSchema struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Definition  json.RawMessage `json:"schema_definition"`
	LLMProvider string          `json:"llm_provider"`
	LLMModel    string          `json:"llm_model"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
