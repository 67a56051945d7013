package schema

import "slices"

// Type literals accepted in Field.Type. They follow JSON Schema naming.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeAny     = "any"
)

// Field describes the expected shape of one JSON value.
type Field struct {
	Type        string           `json:"type"`
	Required    bool             `json:"required,omitempty"`
	Description string           `json:"description,omitempty"`
	Enum        []any            `json:"enum,omitempty"`
	Minimum     *float64         `json:"minimum,omitempty"`
	Maximum     *float64         `json:"maximum,omitempty"`
	Items       *Field           `json:"items,omitempty"`
	Properties  map[string]Field `json:"properties,omitempty"`
}

// PropertyNames returns object property names in deterministic order.
func (f Field) PropertyNames() []string {
	names := make([]string, 0, len(f.Properties))
	for name := range f.Properties {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
