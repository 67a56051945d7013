package tool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/petal-labs/npmsentinel/schema"
)

const (
	// ToolErrorCodeUnknownTool is returned when a tool name is not registered.
	ToolErrorCodeUnknownTool = "UNKNOWN_TOOL"
	// ToolErrorCodeSchemaMismatch is returned when arguments fail the declared input schema.
	ToolErrorCodeSchemaMismatch = "SCHEMA_MISMATCH"
	// ToolErrorCodeInvalidArguments is returned when arguments are well-typed but unusable.
	ToolErrorCodeInvalidArguments = "INVALID_ARGUMENTS"
	// ToolErrorCodeNotFound is returned when an upstream reports the resource does not exist.
	ToolErrorCodeNotFound = "NOT_FOUND"
	// ToolErrorCodeUpstreamFailure is returned for non-success upstream responses.
	ToolErrorCodeUpstreamFailure = "UPSTREAM_FAILURE"
	// ToolErrorCodeTransportFailure is returned when transport I/O fails.
	ToolErrorCodeTransportFailure = "TRANSPORT_FAILURE"
	// ToolErrorCodeTimeout is returned when a request exceeds its deadline.
	ToolErrorCodeTimeout = "TIMEOUT"
	// ToolErrorCodeDecodeFailure is returned when an upstream body is not valid JSON.
	ToolErrorCodeDecodeFailure = "DECODE_FAILURE"
	// ToolErrorCodeShapeMismatch is returned when an upstream body does not match its expected shape.
	ToolErrorCodeShapeMismatch = "SHAPE_MISMATCH"
	// ToolErrorCodeInvocationFailed is a generic fallback for tool invocation failures.
	ToolErrorCodeInvocationFailed = "INVOCATION_FAILED"
)

var (
	// ErrUnknownTool indicates the requested tool name is not registered.
	ErrUnknownTool = errors.New("tool: unknown tool")
	// ErrSchemaMismatch indicates arguments do not satisfy the tool's input schema.
	ErrSchemaMismatch = errors.New("tool: arguments do not match input schema")
)

// ToolError is a structured invocation error that keeps a machine-readable
// code next to the human-readable message shown in reports.
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return ToolErrorCodeInvocationFailed
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Reason returns the message without the code prefix.
func (e *ToolError) Reason() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewToolError builds a ToolError, defaulting the code and message when empty.
func NewToolError(code, message string, cause error) *ToolError {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = ToolErrorCodeInvocationFailed
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &ToolError{
		Code:    cleanCode,
		Message: cleanMsg,
		Cause:   cause,
	}
}

// WithDetails merges details into err and returns it.
func WithDetails(err *ToolError, details map[string]any) *ToolError {
	if err == nil {
		return nil
	}
	if len(details) == 0 {
		return err
	}
	if err.Details == nil {
		err.Details = make(map[string]any, len(details))
	}
	for key, value := range details {
		err.Details[key] = value
	}
	return err
}

// ErrorCode returns the ToolError code found in err's chain, if any.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr != nil {
		return toolErr.Code
	}
	var mismatch *SchemaMismatchError
	if errors.As(err, &mismatch) {
		return ToolErrorCodeSchemaMismatch
	}
	return ""
}

// ErrorCodeOrDefault returns ErrorCode(err) or fallback when none is present.
func ErrorCodeOrDefault(err error, fallback string) string {
	if code := ErrorCode(err); strings.TrimSpace(code) != "" {
		return code
	}
	if strings.TrimSpace(fallback) == "" {
		return ToolErrorCodeInvocationFailed
	}
	return fallback
}

// SchemaMismatchError reports arguments rejected before the handler ran.
type SchemaMismatchError struct {
	Tool        string
	Diagnostics []schema.Diagnostic
}

func (e *SchemaMismatchError) Error() string {
	if e == nil {
		return ""
	}
	detail := (&schema.ValidationError{Diagnostics: e.Diagnostics}).Summary()
	if detail == "" {
		return fmt.Sprintf("invalid arguments for %s", e.Tool)
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, detail)
}

// Is matches ErrSchemaMismatch.
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}
