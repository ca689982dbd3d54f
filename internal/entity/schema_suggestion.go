package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/constants"
)

// SchemaSuggestion tracks a schema suggestion job for a document. On
// success the suggested schema definition awaits explicit approval before
// it becomes a real ExtractionSchema.
type SchemaSuggestion struct {
	ID                   uuid.UUID           `json:"id"`
	DocumentID           uuid.UUID           `json:"document_id"`
	Status               constants.JobStatus `json:"status"`
	SuggestedName        string              `json:"suggested_name,omitempty"`
	SuggestedDescription string              `json:"suggested_description,omitempty"`
	SuggestedSchema      json.RawMessage     `json:"suggested_schema,omitempty"`
	LLMProvider          string              `json:"llm_provider"`
	LLMModel             string              `json:"llm_model"`
	ErrorMessage         string              `json:"error_message,omitempty"`
	RetryCount           int                 `json:"retry_count"`
	MaxRetries           int                 `json:"max_retries"`
	NotBefore            *time.Time          `json:"not_before,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	CompletedAt          *time.Time          `json:"completed_at,omitempty"`
}
