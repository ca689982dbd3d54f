package schema

import (
	"github.com/schemaflow/schemaflow/constants"
)

// Compile converts a validated field tree into a JSON-Schema (draft 2020-12
// subset) as a generic map. This is the strict form the final merged record
// must satisfy: required fields are present and non-null, optional fields
// accept null. Compilation is pure: identical trees compile to identical
// maps.
func Compile(def Definition) (map[string]any, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return compileObject(def.Fields, true), nil
}

// CompilePartial compiles the per-chunk form of the same tree: every field
// accepts null and nothing is required. A single chunk of a document may
// not contain a given field at all, and the extraction prompts tell the
// model to return null for fields not found yet, so partial payloads are
// validated against this form.
func CompilePartial(def Definition) (map[string]any, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return compileObject(def.Fields, false), nil
}

func compileObject(fields []Field, strict bool) map[string]any {
	props := make(map[string]any, len(fields))
	var required []string
	for _, f := range fields {
		props[f.Name] = compileField(f, strict)
		if strict && f.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func compileField(f Field, strict bool) map[string]any {
	nullable := !strict || !f.Required
	var out map[string]any
	switch f.Type {
	case constants.FieldObject:
		out = compileObject(f.Fields, strict)
		if nullable {
			out["type"] = []any{"object", "null"}
		}
	case constants.FieldArray:
		out = map[string]any{
			"type":  "array",
			"items": compileItems(f.Items, strict),
		}
		if nullable {
			out["type"] = []any{"array", "null"}
		}
	default:
		out = map[string]any{"type": string(f.Type)}
		if nullable {
			out["type"] = []any{string(f.Type), "null"}
		}
	}
	if f.Description != "" {
		out["description"] = f.Description
	}
	return out
}

func compileItems(items *Items, strict bool) map[string]any {
	if items.Type == constants.FieldObject {
		return compileObject(items.Fields, strict)
	}
	return map[string]any{"type": string(items.Type)}
}
