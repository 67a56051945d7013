package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/petal-labs/npmsentinel/schema"
)

// Annotations are behavioural hints advertised to MCP clients.
type Annotations struct {
	ReadOnly    bool `json:"readOnlyHint"`
	Destructive bool `json:"destructiveHint"`
	Idempotent  bool `json:"idempotentHint"`
	OpenWorld   bool `json:"openWorldHint"`
}

// Result is the text produced by one tool invocation.
type Result struct {
	Text string
	// Items and Failures count per-item outcomes for fan-out tools.
	Items    int
	Failures int
}

// Handler runs a tool against its raw argument object. Handlers built by New
// validate the object against the input schema before decoding it.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

// Descriptor is the immutable registration record for one tool.
type Descriptor struct {
	Name        string
	Title       string
	Description string
	InputSchema *jsonschema.Schema
	Annotations Annotations

	shape   schema.Field
	handler Handler
}

// Option customizes a Descriptor.
type Option func(*Descriptor)

// WithTitle sets the display title.
func WithTitle(title string) Option {
	return func(d *Descriptor) {
		d.Title = title
	}
}

// WithAnnotations overrides the default read-only, open-world annotations.
func WithAnnotations(annotations Annotations) Option {
	return func(d *Descriptor) {
		d.Annotations = annotations
	}
}

// New binds fn to a descriptor whose input schema is reflected from T.
func New[T any](name, description string, fn func(ctx context.Context, args T) (Result, error), opts ...Option) Descriptor {
	d := Descriptor{
		Name:        name,
		Description: description,
		InputSchema: schema.ReflectJSONSchema[T](),
		Annotations: Annotations{
			ReadOnly:   true,
			Idempotent: true,
			OpenWorld:  true,
		},
	}
	d.shape = schema.FromJSONSchema(d.InputSchema)
	if fn != nil {
		shape := d.shape
		d.handler = func(ctx context.Context, value map[string]any) (Result, error) {
			var args T
			if err := schema.DecodeValue(value, shape, &args); err != nil {
				var invalid *schema.ValidationError
				if errors.As(err, &invalid) {
					return Result{}, &SchemaMismatchError{Tool: name, Diagnostics: invalid.Diagnostics}
				}
				return Result{}, NewToolError(ToolErrorCodeInvalidArguments, fmt.Sprintf("decode arguments: %v", err), err)
			}
			return fn(ctx, args)
		}
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Shape returns the validation shape derived from the input schema.
func (d Descriptor) Shape() schema.Field {
	return d.shape
}
