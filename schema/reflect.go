package schema

import (
	"encoding/json"
	"slices"

	"github.com/invopop/jsonschema"
)

// ReflectJSONSchema reflects T into a self-contained JSON Schema.
//
// Fields are required only when tagged `jsonschema:"required"`, so optional
// upstream attributes never fail validation by being absent.
func ReflectJSONSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		Anonymous:                  true,
		AllowAdditionalProperties:  true,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	s := reflector.Reflect(&v)
	s.Version = ""
	return s
}

// Reflect returns the validation shape of T.
func Reflect[T any]() Field {
	return FromJSONSchema(ReflectJSONSchema[T]())
}

// FromJSONSchema converts the subset of JSON Schema the validator understands.
// Unknown keywords are ignored; a schema with no type accepts any value.
func FromJSONSchema(s *jsonschema.Schema) Field {
	if s == nil {
		return Field{Type: TypeAny}
	}

	field := Field{
		Type:        s.Type,
		Description: s.Description,
		Enum:        slices.Clone(s.Enum),
		Minimum:     bound(s.Minimum),
		Maximum:     bound(s.Maximum),
	}
	if s.Items != nil {
		items := FromJSONSchema(s.Items)
		field.Items = &items
	}

	if s.Properties != nil && s.Properties.Len() > 0 {
		required := make(map[string]bool, len(s.Required))
		for _, name := range s.Required {
			required[name] = true
		}
		field.Properties = make(map[string]Field, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			prop := FromJSONSchema(pair.Value)
			prop.Required = required[pair.Key]
			field.Properties[pair.Key] = prop
		}
	}

	if field.Type == "" {
		if len(field.Properties) > 0 {
			field.Type = TypeObject
		} else {
			field.Type = TypeAny
		}
	}
	return field
}

func bound(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return &f
}
