// Package schema models the user-defined field tree and compiles it into
// the JSON-Schema map handed to the model caller. Field descriptions are the
// only channel for steering extraction, so compilation preserves them
// verbatim.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/constants"
)

// Field is one node in the recursive field tree. Exactly one of Fields
// (for object) or Items (for array) is populated, matching Type; primitive
// types carry neither. Ownership is strictly parent to child, so the tree
// has no cycles.
type Field struct {
	ID          string              `json:"id,omitempty"`
	Name        string              `json:"name"`
	Type        constants.FieldType `json:"type"`
	Description string              `json:"description,omitempty"`
	Required    bool                `json:"required"`
	Fields      []Field             `json:"fields,omitempty"`
	Items       *Items              `json:"items,omitempty"`
}

// Items describes the element type of an array field: either a primitive
// type, or an object with its own child fields.
type Items struct {
	Type   constants.FieldType `json:"type"`
	Fields []Field             `json:"fields,omitempty"`
}

// Definition is the internal builder format stored on an ExtractionSchema:
// {"fields": [...]}.
type Definition struct {
	Fields []Field `json:"fields"`
}

// SchemaError reports a malformed field tree. It is fatal and surfaces at
// schema-save time, before any job runs.
type SchemaError struct {
	Path    string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema error: %s", e.Message)
	}
	return fmt.Sprintf("schema error at %q: %s", e.Path, e.Message)
}

// ParseDefinition decodes the internal builder format and validates the
// resulting tree.
func ParseDefinition(raw json.RawMessage) (Definition, error) {
	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return Definition{}, &SchemaError{Message: fmt.Sprintf("invalid definition JSON: %v", err)}
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Validate checks the whole tree for structural problems: empty or
// duplicate sibling names, unknown types, object nodes without children,
// array nodes without items.
func (d Definition) Validate() error {
	if len(d.Fields) == 0 {
		return &SchemaError{Message: "at least one field is required"}
	}
	return validateFields(d.Fields, "")
}

func validateFields(fields []Field, path string) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		p := f.Name
		if path != "" {
			p = path + "." + f.Name
		}
		if f.Name == "" {
			return &SchemaError{Path: path, Message: "field name must not be empty"}
		}
		if seen[f.Name] {
			return &SchemaError{Path: p, Message: "duplicate sibling field name"}
		}
		seen[f.Name] = true

		if !f.Type.Valid() {
			return &SchemaError{Path: p, Message: fmt.Sprintf("unknown field type %q", f.Type)}
		}

		switch f.Type {
		case constants.FieldObject:
			if len(f.Fields) == 0 {
				return &SchemaError{Path: p, Message: "object field must declare child fields"}
			}
			if f.Items != nil {
				return &SchemaError{Path: p, Message: "object field must not declare items"}
			}
			if err := validateFields(f.Fields, p); err != nil {
				return err
			}
		case constants.FieldArray:
			if f.Items == nil {
				return &SchemaError{Path: p, Message: "array field must declare items"}
			}
			if len(f.Fields) != 0 {
				return &SchemaError{Path: p, Message: "array field must not declare child fields"}
			}
			if err := validateItems(f.Items, p); err != nil {
				return err
			}
		default:
			if len(f.Fields) != 0 || f.Items != nil {
				return &SchemaError{Path: p, Message: "primitive field must not declare children or items"}
			}
		}
	}
	return nil
}

func validateItems(items *Items, path string) error {
	if items.Type == constants.FieldObject {
		if len(items.Fields) == 0 {
			return &SchemaError{Path: path, Message: "array of objects must declare item fields"}
		}
		return validateFields(items.Fields, path+"[]")
	}
	if items.Type == constants.FieldArray {
		return &SchemaError{Path: path, Message: "nested array items are not supported"}
	}
	if !items.Type.Valid() {
		return &SchemaError{Path: path, Message: fmt.Sprintf("unknown item type %q", items.Type)}
	}
	if len(items.Fields) != 0 {
		return &SchemaError{Path: path, Message: "primitive items must not declare fields"}
	}
	return nil
}

// EnsureIDs assigns a UUID to every field missing one, recursively.
// Builder clients key the visual tree off these ids.
func EnsureIDs(fields []Field) []Field {
	for i := range fields {
		if fields[i].ID == "" {
			fields[i].ID = uuid.New().String()
		}
		if len(fields[i].Fields) > 0 {
			fields[i].Fields = EnsureIDs(fields[i].Fields)
		}
		if fields[i].Items != nil && len(fields[i].Items.Fields) > 0 {
			fields[i].Items.Fields = EnsureIDs(fields[i].Items.Fields)
		}
	}
	return fields
}
