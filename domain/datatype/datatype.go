// Package datatype contains the structural type system: data type
// definitions, the rules they are composed of and the registry that
// validates values against named types.
package datatype

// Variant classifies the shape a DataType describes.
type Variant string

const (
	VariantType   Variant = "TYPE"   // scalar or enum-like
	VariantObject Variant = "OBJECT" // keyed structure
	VariantArray  Variant = "ARRAY"  // homogeneous sequence
	VariantURL    Variant = "URL"
)

// Built-in root type identifiers.
const (
	Object  = "OBJECT"
	Array   = "ARRAY"
	Text    = "TEXT"
	Number  = "NUMBER"
	Boolean = "BOOLEAN"
	Any     = "ANY"
)

// DataType is a named structural type definition.
// A value satisfies a DataType when it satisfies every rule of the type
// and every rule of each ancestor reachable through ParentTypeIdentifier.
type DataType struct {
	Identifier           string  `json:"identifier" yaml:"identifier"`
	Variant              Variant `json:"variant,omitempty" yaml:"variant,omitempty"`
	Rules                []Rule  `json:"rules,omitempty" yaml:"rules,omitempty"`
	ParentTypeIdentifier string  `json:"parent_type_identifier,omitempty" yaml:"parent_type_identifier,omitempty"`
}

// HasParent reports whether the type inherits rules from another type.
func (d DataType) HasParent() bool {
	return d.ParentTypeIdentifier != ""
}

// shape is the kind check a built-in root imposes on values.
type shape func(v any) bool

var builtins = []struct {
	def   DataType
	shape shape
}{
	{DataType{Identifier: Object, Variant: VariantObject}, isObject},
	{DataType{Identifier: Array, Variant: VariantArray}, isArray},
	{DataType{Identifier: Text, Variant: VariantType}, isText},
	{DataType{Identifier: Number, Variant: VariantType}, isNumber},
	{DataType{Identifier: Boolean, Variant: VariantType}, isBoolean},
	{DataType{Identifier: Any, Variant: VariantType}, nil},
}

// IsBuiltin reports whether id names one of the built-in root types.
func IsBuiltin(id string) bool {
	for _, b := range builtins {
		if b.def.Identifier == id {
			return true
		}
	}
	return false
}

func isObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

func isText(v any) bool {
	_, ok := v.(string)
	return ok
}

func isNumber(v any) bool {
	_, ok := v.(float64)
	return ok
}

func isBoolean(v any) bool {
	_, ok := v.(bool)
	return ok
}

// kindOf names the JSON kind of a normalized value for diagnostics.
func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "text"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return "unknown"
	}
}
