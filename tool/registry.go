package tool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Registry maps tool names to descriptors. It is immutable once built.
type Registry struct {
	tools map[string]Descriptor
	order []string
}

// NewRegistry builds a registry, rejecting empty, handler-less, and duplicate tools.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]Descriptor, len(descriptors)),
		order: make([]string, 0, len(descriptors)),
	}
	for _, d := range descriptors {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, errors.New("tool: descriptor name is required")
		}
		if d.handler == nil {
			return nil, fmt.Errorf("tool: descriptor %q has no handler", name)
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("tool: duplicate tool name %q", name)
		}
		r.tools[name] = d
		r.order = append(r.order, name)
	}
	return r, nil
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	if r == nil {
		return nil
	}
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := slices.Clone(r.order)
	slices.Sort(names)
	return names
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	d, ok := r.tools[name]
	return d, ok
}

// Dispatch validates args against the tool's schema and invokes its handler.
// Unknown names fail with ErrUnknownTool and invalid args with
// ErrSchemaMismatch; in both cases the tool function never runs.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (Result, error) {
	start := time.Now()
	result, err := r.dispatch(ctx, name, args)

	EmitInvoke(ToolInvokeObservation{
		ToolName:   name,
		RequestID:  RequestIDFrom(ctx),
		DurationMS: time.Since(start).Milliseconds(),
		Success:    err == nil,
		ErrorCode:  ErrorCode(err),
		Items:      result.Items,
		Failures:   result.Failures,
	})
	return result, err
}

func (r *Registry) dispatch(ctx context.Context, name string, args map[string]any) (Result, error) {
	d, ok := r.Get(name)
	if !ok {
		return Result{}, NewToolError(ToolErrorCodeUnknownTool, fmt.Sprintf("unknown tool %q", name), ErrUnknownTool)
	}

	if args == nil {
		args = map[string]any{}
	}
	return d.handler(ctx, args)
}
