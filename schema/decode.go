package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const maxSummaryDiagnostics = 3

// ErrInvalidJSON is returned when a payload is not parseable JSON.
var ErrInvalidJSON = errors.New("schema: invalid JSON")

// ValidationError reports a value that does not match its declared shape.
type ValidationError struct {
	Diagnostics []Diagnostic
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Diagnostics) == 0 {
		return "schema: value does not match expected shape"
	}
	return "schema: value does not match expected shape: " + e.Summary()
}

// Summary renders the first few diagnostics on one line.
func (e *ValidationError) Summary() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, maxSummaryDiagnostics)
	for i, d := range e.Diagnostics {
		if i == maxSummaryDiagnostics {
			parts = append(parts, fmt.Sprintf("and %d more", len(e.Diagnostics)-maxSummaryDiagnostics))
			break
		}
		parts = append(parts, d.String())
	}
	return strings.Join(parts, "; ")
}

// DecodeJSON parses data, validates it against field, and only then decodes
// it into out.
func DecodeJSON(data []byte, field Field, out any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if result := Validate(raw, field); result.HasErrors() {
		return &ValidationError{Diagnostics: result.Diagnostics}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("schema: decode into %T: %w", out, err)
	}
	return nil
}

// DecodeValue validates an already-parsed value and converts it into out.
func DecodeValue(value any, field Field, out any) error {
	if result := Validate(value, field); result.HasErrors() {
		return &ValidationError{Diagnostics: result.Diagnostics}
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("schema: encode value: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("schema: decode into %T: %w", out, err)
	}
	return nil
}
