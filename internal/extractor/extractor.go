// Package extractor runs single structured-extraction calls: prompt
// construction, the model call, schema validation, and one repair attempt.
package extractor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/schemaflow/schemaflow/internal/llm"
)

// Extractor turns one chunk of text into a schema-conformant JSON payload.
type Extractor struct {
	caller llm.Caller
	log    *slog.Logger
}

func New(caller llm.Caller, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{caller: caller, log: logger}
}

// Request describes one chunk extraction. Accumulated carries the merged
// partial result from earlier chunks and is embedded in continuation
// prompts; it is nil for the first chunk and for unchunked documents.
type Request struct {
	Schema      map[string]any
	SchemaName  string
	SchemaDesc  string
	ChunkText   string
	ChunkIndex  int
	TotalChunks int
	Accumulated []byte
	Model       llm.ModelConfig
}

// Extract calls the model and validates the payload against the schema.
// On validation failure it re-asks once with the validation error attached;
// a second failure is reported as permanent malformed output.
func (e *Extractor) Extract(ctx context.Context, req Request) (json.RawMessage, error) {
	pc := llm.PromptContext{
		SchemaName:        req.SchemaName,
		SchemaDescription: req.SchemaDesc,
		ChunkIndex:        req.ChunkIndex,
		TotalChunks:       req.TotalChunks,
		Accumulated:       req.Accumulated,
	}
	system := llm.BuildSystemPrompt(pc)
	user := llm.BuildUserPrompt(pc, req.ChunkText)

	payload, err := e.call(ctx, req, system, user)
	if err != nil {
		return nil, err
	}

	verr := llm.ValidateJSONAgainstSchema(req.Schema, payload)
	if verr == nil {
		return payload, nil
	}

	e.log.Warn("extract.repair",
		"chunk", req.ChunkIndex,
		"validation_error", verr,
	)
	repaired, err := e.call(ctx, req, system, llm.BuildRepairPrompt(user, payload, verr))
	if err != nil {
		return nil, err
	}
	if verr = llm.ValidateJSONAgainstSchema(req.Schema, repaired); verr != nil {
		return nil, llm.NewCallError(llm.KindMalformedOutput,
			"model output failed schema validation after repair", verr)
	}
	return repaired, nil
}

func (e *Extractor) call(ctx context.Context, req Request, system, user string) (json.RawMessage, error) {
	payload, err := e.caller.Call(ctx, llm.CallRequest{
		Schema:       req.Schema,
		SystemPrompt: system,
		UserPrompt:   user,
		Model:        req.Model,
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, llm.NewCallError(llm.KindMalformedOutput, "model returned invalid JSON", nil)
	}
	return payload, nil
}
