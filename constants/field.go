package constants

// FieldType enumerates the value types a schema field may declare.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
)

// Primitive reports whether the type carries neither children nor items.
func (t FieldType) Primitive() bool {
	switch t {
	case FieldString, FieldNumber, FieldInteger, FieldBoolean:
		return true
	}
	return false
}

// Valid reports whether t is one of the declared field types.
func (t FieldType) Valid() bool {
	return t.Primitive() || t == FieldObject || t == FieldArray
}
