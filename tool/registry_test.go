package tool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type echoArgs struct {
	Packages []string `json:"packages" jsonschema:"required,description=Package names"`
	Period   string   `json:"period,omitempty" jsonschema:"enum=last-week,enum=last-month"`
}

func newEchoTool(calls *int) Descriptor {
	return New("echo", "Echo package names", func(ctx context.Context, args echoArgs) (Result, error) {
		*calls++
		return Result{Text: strings.Join(args.Packages, ",") + "|" + args.Period, Items: len(args.Packages)}, nil
	}, WithTitle("Echo"))
}

type recordingObserver struct {
	mu      sync.Mutex
	invokes []ToolInvokeObservation
}

func (o *recordingObserver) ObserveInvoke(obs ToolInvokeObservation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invokes = append(o.invokes, obs)
}
func (o *recordingObserver) ObserveUpstream(UpstreamObservation) {}
func (o *recordingObserver) ObserveHealth(HealthObservation)     {}

func TestRegistryDispatch(t *testing.T) {
	calls := 0
	reg, err := NewRegistry(newEchoTool(&calls))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	result, err := reg.Dispatch(context.Background(), "echo", map[string]any{
		"packages": []any{"react", "vue"},
		"period":   "last-week",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Text != "react,vue|last-week" {
		t.Fatalf("Text = %q", result.Text)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRegistryDispatchUnknownTool(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	_, err = reg.Dispatch(context.Background(), "missing", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("Dispatch() error = %v, want ErrUnknownTool", err)
	}
	if got := ErrorCode(err); got != ToolErrorCodeUnknownTool {
		t.Fatalf("ErrorCode() = %q, want %q", got, ToolErrorCodeUnknownTool)
	}
}

func TestRegistryDispatchSchemaMismatchSkipsHandler(t *testing.T) {
	calls := 0
	reg, err := NewRegistry(newEchoTool(&calls))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "nil args", args: nil, want: "packages"},
		{name: "wrong type", args: map[string]any{"packages": "react"}, want: "packages"},
		{name: "bad enum", args: map[string]any{"packages": []any{"a"}, "period": "daily"}, want: "period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Dispatch(context.Background(), "echo", tt.args)
			if !errors.Is(err, ErrSchemaMismatch) {
				t.Fatalf("Dispatch() error = %v, want ErrSchemaMismatch", err)
			}
			var mismatch *SchemaMismatchError
			if !errors.As(err, &mismatch) {
				t.Fatalf("error type = %T, want *SchemaMismatchError", err)
			}
			if len(mismatch.Diagnostics) == 0 || mismatch.Diagnostics[0].Field != tt.want {
				t.Fatalf("diagnostics = %#v, want field %q", mismatch.Diagnostics, tt.want)
			}
		})
	}
	if calls != 0 {
		t.Fatalf("handler called %d times, want 0", calls)
	}
}

func TestNewRegistryRejectsInvalidDescriptors(t *testing.T) {
	calls := 0
	tests := []struct {
		name  string
		descs []Descriptor
	}{
		{name: "duplicate", descs: []Descriptor{newEchoTool(&calls), newEchoTool(&calls)}},
		{name: "empty name", descs: []Descriptor{{Name: " "}}},
		{name: "no handler", descs: []Descriptor{New[echoArgs]("nohandler", "", nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.descs...); err == nil {
				t.Fatal("NewRegistry() error = nil, want non-nil")
			}
		})
	}
}

func TestRegistryListKeepsRegistrationOrder(t *testing.T) {
	noop := func(ctx context.Context, args echoArgs) (Result, error) { return Result{}, nil }
	reg, err := NewRegistry(
		New("zeta", "", noop),
		New("alpha", "", noop),
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	list := reg.List()
	if len(list) != 2 || list[0].Name != "zeta" || list[1].Name != "alpha" {
		t.Fatalf("List() = %v", list)
	}
	if names := reg.Names(); names[0] != "alpha" {
		t.Fatalf("Names() = %v, want sorted", names)
	}
	if list[0].InputSchema == nil || list[0].InputSchema.Type != "object" {
		t.Fatalf("InputSchema = %#v, want object schema", list[0].InputSchema)
	}
	if !list[0].Annotations.ReadOnly || !list[0].Annotations.OpenWorld {
		t.Fatalf("Annotations = %#v, want read-only open-world defaults", list[0].Annotations)
	}
}

func TestRegistryDispatchEmitsObservation(t *testing.T) {
	observer := &recordingObserver{}
	SetObserver(observer)
	defer SetObserver(nil)

	calls := 0
	reg, err := NewRegistry(newEchoTool(&calls))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	ctx := WithRequestID(context.Background(), "req-1")
	if _, err := reg.Dispatch(ctx, "echo", map[string]any{"packages": []any{"a", "b"}}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	_, _ = reg.Dispatch(ctx, "echo", map[string]any{})

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if len(observer.invokes) != 2 {
		t.Fatalf("observations = %d, want 2", len(observer.invokes))
	}
	first := observer.invokes[0]
	if !first.Success || first.Items != 2 || first.RequestID != "req-1" || first.ToolName != "echo" {
		t.Fatalf("first observation = %#v", first)
	}
	second := observer.invokes[1]
	if second.Success || second.ErrorCode != ToolErrorCodeSchemaMismatch {
		t.Fatalf("second observation = %#v", second)
	}
}

func TestToolErrorFormatting(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewToolError(ToolErrorCodeTransportFailure, "", cause)
	if err.Error() != "TRANSPORT_FAILURE: dial tcp: refused" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if err.Reason() != "dial tcp: refused" {
		t.Fatalf("Reason() = %q", err.Reason())
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is(err, cause) = false")
	}
	WithDetails(err, map[string]any{"status": 502})
	if err.Details["status"] != 502 {
		t.Fatalf("Details = %#v", err.Details)
	}
	if got := ErrorCodeOrDefault(errors.New("plain"), ""); got != ToolErrorCodeInvocationFailed {
		t.Fatalf("ErrorCodeOrDefault() = %q", got)
	}
}
