package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Severity defines diagnostic severity produced by the validator.
type Severity string

const SeverityError Severity = "error"

// Diagnostic codes.
const (
	CodeRequired = "REQUIRED"
	CodeType     = "TYPE"
	CodeEnum     = "ENUM"
	CodeRange    = "RANGE"
)

const maxInt64AsUint64 = ^uint64(0) >> 1

// Diagnostic is a structured validation finding.
type Diagnostic struct {
	Field    string   `json:"field,omitempty"`
	Code     string   `json:"code,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Field == "" {
		return d.Message
	}
	return d.Field + ": " + d.Message
}

// Result aggregates diagnostics from one validation pass.
type Result struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// HasErrors returns true when at least one error-severity diagnostic exists.
func (r Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks value against field and returns every finding.
func Validate(value any, field Field) Result {
	v := validator{diags: make([]Diagnostic, 0)}
	// The root value itself must be present; only properties may be optional.
	field.Required = true
	v.validate("$", value, field)
	return Result{Diagnostics: v.diags}
}

type validator struct {
	diags []Diagnostic
}

func (v *validator) validate(path string, value any, field Field) {
	if value == nil {
		if field.Required {
			v.add(path, CodeRequired, "is required")
		}
		return
	}

	switch field.Type {
	case "", TypeAny:
		return
	case TypeString:
		str, ok := value.(string)
		if !ok {
			v.add(path, CodeType, "must be a string")
			return
		}
		v.checkEnum(path, str, field)
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			v.add(path, CodeType, "must be a boolean")
		}
	case TypeInteger:
		n, ok := asInteger(value)
		if !ok {
			v.add(path, CodeType, "must be an integer")
			return
		}
		v.checkEnum(path, n, field)
		v.checkRange(path, float64(n), field)
	case TypeNumber:
		n, ok := asNumber(value)
		if !ok {
			v.add(path, CodeType, "must be a number")
			return
		}
		v.checkEnum(path, n, field)
		v.checkRange(path, n, field)
	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			v.add(path, CodeType, "must be an array")
			return
		}
		if field.Items == nil {
			return
		}
		for i, item := range items {
			itemField := *field.Items
			// Array elements are positional; null elements are always a type error.
			itemField.Required = true
			v.validate(fmt.Sprintf("%s[%d]", path, i), item, itemField)
		}
	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			v.add(path, CodeType, "must be an object")
			return
		}
		for _, name := range field.PropertyNames() {
			v.validate(joinPath(path, name), obj[name], field.Properties[name])
		}
	default:
		v.add(path, CodeType, fmt.Sprintf("has unsupported declared type %q", field.Type))
	}
}

func (v *validator) checkEnum(path string, value any, field Field) {
	if len(field.Enum) == 0 {
		return
	}
	got := fmt.Sprint(value)
	allowed := make([]string, 0, len(field.Enum))
	for _, candidate := range field.Enum {
		want := fmt.Sprint(candidate)
		if want == got {
			return
		}
		allowed = append(allowed, want)
	}
	v.add(path, CodeEnum, "must be one of: "+strings.Join(allowed, ", "))
}

func (v *validator) checkRange(path string, n float64, field Field) {
	if field.Minimum != nil && n < *field.Minimum {
		v.add(path, CodeRange, "must be >= "+strconv.FormatFloat(*field.Minimum, 'f', -1, 64))
	}
	if field.Maximum != nil && n > *field.Maximum {
		v.add(path, CodeRange, "must be <= "+strconv.FormatFloat(*field.Maximum, 'f', -1, 64))
	}
}

func (v *validator) add(field, code, message string) {
	v.diags = append(v.diags, Diagnostic{
		Field:    field,
		Code:     code,
		Severity: SeverityError,
		Message:  message,
	})
}

func joinPath(parent, name string) string {
	if parent == "$" {
		return name
	}
	return parent + "." + name
}

func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		i, ok := asInteger(value)
		return float64(i), ok
	}
}

func asInteger(value any) (int64, bool) {
	switch n := value.(type) {
	case json.Number:
		i, err := n.Int64()
		if err == nil {
			return i, true
		}
		// Fall back to float parse so 3.0 is accepted and 3.5 is rejected.
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, false
		}
		if f != float64(int64(f)) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case float32:
		if n != float32(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		if n > maxInt64AsUint64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
