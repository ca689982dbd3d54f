// Package llm defines the contract the pipeline requires from a
// model-calling collaborator, plus prompt construction and payload
// validation shared by every provider implementation.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// ModelConfig selects the provider and model for a call.
type ModelConfig struct {
	Provider    string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// CallRequest carries everything a provider needs for one structured call:
// the compiled target schema the response must conform to, and the
// instruction/content pair built by the extractor.
type CallRequest struct {
	Schema       map[string]any
	SystemPrompt string
	UserPrompt   string
	Model        ModelConfig
}

// Caller is the interface the pipeline depends on. Implementations return
// the raw JSON payload produced by the model; they do not validate it
// against the schema (the extractor owns validation and repair).
type Caller interface {
	Call(ctx context.Context, req CallRequest) (json.RawMessage, error)
}
