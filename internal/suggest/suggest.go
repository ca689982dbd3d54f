// Package suggest proposes extraction schemas from document samples.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/schemaflow/schemaflow/internal/llm"
	"github.com/schemaflow/schemaflow/internal/schema"
)

const (
	// Documents longer than sampleHead+sampleTail+1000 are sampled rather
	// than sent whole.
	sampleHead = 12_000
	sampleTail = 3_000
)

// Proposal is a suggested schema awaiting user approval.
type Proposal struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Definition  schema.Definition `json:"schema_definition"`
}

type Suggester struct {
	caller llm.Caller
	log    *slog.Logger
}

func New(caller llm.Caller, logger *slog.Logger) *Suggester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suggester{caller: caller, log: logger}
}

// Suggest analyzes a document and returns a validated proposal. Short
// documents go to the model whole; long ones become separate head and
// tail samples whose per-sample proposals are merged field-wise. Every
// proposed field gets an id assigned before the proposal is stored.
func (s *Suggester) Suggest(ctx context.Context, documentText string, model llm.ModelConfig) (Proposal, error) {
	samples := Samples(documentText)

	s.log.Info("suggest.start", "samples", len(samples), "model", model.Model)

	proposals := make([]Proposal, 0, len(samples))
	for _, sample := range samples {
		prop, err := s.propose(ctx, sample, model)
		if err != nil {
			return Proposal{}, err
		}
		proposals = append(proposals, prop)
	}
	return MergeProposals(proposals), nil
}

func (s *Suggester) propose(ctx context.Context, sample string, model llm.ModelConfig) (Proposal, error) {
	payload, err := s.caller.Call(ctx, llm.CallRequest{
		Schema:       MetaSchema(),
		SystemPrompt: systemPrompt,
		UserPrompt:   "Analyze this document and suggest an extraction schema:\n\n" + sample,
		Model:        model,
	})
	if err != nil {
		return Proposal{}, err
	}

	prop, err := decode(payload)
	if err != nil {
		return Proposal{}, llm.NewCallError(llm.KindMalformedOutput, "suggestion payload", err)
	}
	return prop, nil
}

// Samples keeps short documents whole and slices long ones into an
// opening and a closing window, skipping the middle: the opening carries
// most of the structure, the tail catches totals and signatures.
func Samples(text string) []string {
	if len(text) <= sampleHead+sampleTail+1000 {
		return []string{text}
	}
	return []string{
		text[:alignRune(text, sampleHead)],
		text[alignRune(text, len(text)-sampleTail):],
	}
}

// alignRune backs pos off to the nearest rune start so a sample never
// splits a multi-byte character.
func alignRune(text string, pos int) int {
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}

func decode(payload []byte) (Proposal, error) {
	var raw struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Fields      []schema.Field `json:"fields"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Proposal{}, fmt.Errorf("decode suggestion: %w", err)
	}
	if raw.Name == "" {
		raw.Name = "Suggested Schema"
	}
	def := schema.Definition{Fields: schema.EnsureIDs(raw.Fields)}
	if err := def.Validate(); err != nil {
		return Proposal{}, fmt.Errorf("suggested definition invalid: %w", err)
	}
	return Proposal{Name: raw.Name, Description: raw.Description, Definition: def}, nil
}

// MergeProposals combines per-chunk proposals into one. Fields are
// concatenated in order of first appearance and deduplicated by name;
// name and description come from the first proposal that has them.
func MergeProposals(proposals []Proposal) Proposal {
	var out Proposal
	seen := make(map[string]bool)
	for _, p := range proposals {
		if out.Name == "" {
			out.Name = p.Name
		}
		if out.Description == "" {
			out.Description = p.Description
		}
		for _, f := range p.Definition.Fields {
			if seen[strings.ToLower(f.Name)] {
				continue
			}
			seen[strings.ToLower(f.Name)] = true
			out.Definition.Fields = append(out.Definition.Fields, f)
		}
	}
	return out
}

var systemPrompt = strings.Join([]string{
	"You are a document analysis specialist. Your task is to analyze a document",
	"and suggest an extraction schema: a set of structured fields that can capture",
	"the key information in documents like this.",
	"Guidelines:",
	"Identify ALL meaningful data points in the document.",
	"Use snake_case for field names.",
	"Choose appropriate types: string, number, integer, boolean, object, array.",
	"Use 'array' for lists of items (e.g., line items in an invoice, skills in a resume).",
	"Use 'object' for grouped related fields (e.g., address with street, city, zip).",
	"For array types, define the 'items' property with type and fields.",
	"For object types, define nested 'fields'.",
	"Write clear descriptions that help an AI extractor know what to look for.",
	"Mark fields as required if they are essential.",
	"Generate a descriptive schema name and description.",
	"Return ONLY the structured suggestion, with no explanations.",
}, " ")

// MetaSchema is the fixed JSON schema a suggestion payload must match:
// a name, a description, and a field list with one level of object
// nesting and array item descriptors.
func MetaSchema() map[string]any {
	leafField := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string"},
			"type":        map[string]any{"type": "string", "enum": []any{"string", "number", "integer", "boolean"}},
			"description": map[string]any{"type": "string"},
			"required":    map[string]any{"type": "boolean"},
		},
		"required": []any{"name", "type", "description", "required"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "A short, descriptive name for this schema (e.g., 'Invoice Extractor', 'Resume Parser').",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "A brief description of what this schema extracts.",
			},
			"fields": map[string]any{
				"type":        "array",
				"description": "The list of fields to extract from documents like this.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{
							"type":        "string",
							"description": "Field name in snake_case.",
						},
						"type": map[string]any{
							"type":        "string",
							"enum":        []any{"string", "number", "integer", "boolean", "object", "array"},
							"description": "Data type of the field.",
						},
						"description": map[string]any{
							"type":        "string",
							"description": "A brief description of what this field captures, used as guidance for the AI extractor.",
						},
						"required": map[string]any{
							"type":        "boolean",
							"description": "Whether this field is required.",
						},
						"fields": map[string]any{
							"type":        "array",
							"description": "Sub-fields for object type.",
							"items":       leafField,
						},
						"items": map[string]any{
							"type":        "object",
							"description": "Item definition for array type.",
							"properties": map[string]any{
								"type": map[string]any{
									"type": "string",
									"enum": []any{"string", "number", "integer", "boolean", "object"},
								},
								"fields": map[string]any{
									"type":        "array",
									"description": "Sub-fields for array of objects.",
									"items":       leafField,
								},
							},
						},
					},
					"required": []any{"name", "type", "description", "required"},
				},
			},
		},
		"required": []any{"name", "description", "fields"},
	}
}
