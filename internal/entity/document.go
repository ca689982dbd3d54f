package entity

import (
	"time"

	"github.com/google/uuid"
)

// Document stores an uploaded document's raw text. The raw text is the
// source of truth for chunking and is never mutated by the pipeline.
type Document struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	RawText   string    `json:"raw_text"`
	FileType  string    `json:"file_type"`
	CreatedAt time.Time `json:"created_at"`
}
