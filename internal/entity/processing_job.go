package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/constants"
)

// ProcessingJob binds one Document to one ExtractionSchema and tracks the
// extraction through the job state machine. ResultData holds the final
// merged record once the job completes; ChunkResults holds the accumulated
// partial record while a chunked job is in flight.
type ProcessingJob struct {
	ID              uuid.UUID           `json:"id"`
	DocumentID      uuid.UUID           `json:"document_id"`
	SchemaID        uuid.UUID           `json:"schema_id"`
	Status          constants.JobStatus `json:"status"`
	ResultData      json.RawMessage     `json:"result_data,omitempty"`
	ErrorMessage    string              `json:"error_message,omitempty"`
	ErrorKind       string              `json:"error_kind,omitempty"`
	RetryCount      int                 `json:"retry_count"`
	MaxRetries      int                 `json:"max_retries"`
	IsChunked       bool                `json:"is_chunked"`
	TotalChunks     int                 `json:"total_chunks"`
	ProcessedChunks int                 `json:"processed_chunks"`
	ChunkResults    json.RawMessage     `json:"chunk_results,omitempty"`
	CancelRequested bool                `json:"cancel_requested"`
	NotBefore       *time.Time          `json:"not_before,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
}
