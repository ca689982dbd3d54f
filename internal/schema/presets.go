package schema

import "github.com/schemaflow/schemaflow/constants"

// Preset is a built-in schema for common extraction patterns, for documents
// where the user doesn't know what structure to expect.
type Preset struct {
	Key         string     `json:"key"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	Schema      PresetBody `json:"schema"`
}

// PresetBody mirrors the create-schema request shape.
type PresetBody struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Definition  Definition `json:"schema_definition"`
}

// Presets returns the built-in schema presets. Field ids are assigned fresh
// on every call so two schemas created from the same preset don't share ids.
func Presets() []Preset {
	presets := []Preset{
		{
			Key:         "toc",
			Label:       "Table of Contents",
			Description: "Extract the hierarchical structure / headings of a document.",
			Schema: PresetBody{
				Name:        "Table of Contents",
				Description: "Extract the document's hierarchical heading structure.",
				Definition: Definition{Fields: []Field{
					{Name: "title", Type: constants.FieldString, Description: "The document title or main heading.", Required: true},
					{Name: "sections", Type: constants.FieldArray, Description: "Top-level sections/headings in order.", Required: true,
						Items: &Items{Type: constants.FieldObject, Fields: []Field{
							{Name: "heading", Type: constants.FieldString, Description: "Section heading text.", Required: true},
							{Name: "level", Type: constants.FieldInteger, Description: "Heading level (1=top, 2=sub, etc.).", Required: true},
						}}},
				}},
			},
		},
		{
			Key:         "tables",
			Label:       "Tables Extractor",
			Description: "Find and extract all tables embedded in unstructured text.",
			Schema: PresetBody{
				Name:        "Tables Extractor",
				Description: "Extract all tables found in the document, including headers and rows.",
				Definition: Definition{Fields: []Field{
					{Name: "tables", Type: constants.FieldArray, Description: "All tables found in the document.", Required: true,
						Items: &Items{Type: constants.FieldObject, Fields: []Field{
							{Name: "table_title", Type: constants.FieldString, Description: "Title or caption of the table, if any."},
							{Name: "headers", Type: constants.FieldArray, Description: "Column headers of the table.", Required: true,
								Items: &Items{Type: constants.FieldString}},
							{Name: "rows", Type: constants.FieldArray, Description: "Data rows, one string per row with cells separated by ' | '.", Required: true,
								Items: &Items{Type: constants.FieldString}},
						}}},
				}},
			},
		},
		{
			Key:         "key_values",
			Label:       "Key-Value Pairs",
			Description: "Extract all key-value pairs, labels and their values from the document.",
			Schema: PresetBody{
				Name:        "Key-Value Extractor",
				Description: "Extract all identifiable key-value pairs from the document.",
				Definition: Definition{Fields: []Field{
					{Name: "entries", Type: constants.FieldArray, Description: "All key-value pairs found in the document.", Required: true,
						Items: &Items{Type: constants.FieldObject, Fields: []Field{
							{Name: "key", Type: constants.FieldString, Description: "The label, field name, or key.", Required: true},
							{Name: "value", Type: constants.FieldString, Description: "The corresponding value.", Required: true},
							{Name: "category", Type: constants.FieldString, Description: "Optional category or section this pair belongs to."},
						}}},
				}},
			},
		},
		{
			Key:         "summary",
			Label:       "Document Summary",
			Description: "Extract a structured summary with metadata, key points, and entities.",
			Schema: PresetBody{
				Name:        "Document Summary",
				Description: "Extract a structured summary of the document including metadata and key information.",
				Definition: Definition{Fields: []Field{
					{Name: "title", Type: constants.FieldString, Description: "Document title or subject.", Required: true},
					{Name: "document_type", Type: constants.FieldString, Description: "Type of document (report, letter, invoice, contract, etc.).", Required: true},
					{Name: "language", Type: constants.FieldString, Description: "Primary language of the document."},
					{Name: "summary", Type: constants.FieldString, Description: "A concise summary of the document content.", Required: true},
					{Name: "key_points", Type: constants.FieldArray, Description: "Main points or findings in the document.", Required: true,
						Items: &Items{Type: constants.FieldString}},
					{Name: "entities", Type: constants.FieldArray, Description: "Named entities (people, organizations, dates, amounts) found.",
						Items: &Items{Type: constants.FieldObject, Fields: []Field{
							{Name: "name", Type: constants.FieldString, Description: "Entity name or value.", Required: true},
							{Name: "type", Type: constants.FieldString, Description: "Entity type (person, org, date, amount, location, etc.).", Required: true},
						}}},
				}},
			},
		},
	}

	for i := range presets {
		presets[i].Schema.Definition.Fields = EnsureIDs(presets[i].Schema.Definition.Fields)
	}
	return presets
}
