package cli

import "fmt"

// Process exit codes. 0 is success; cobra usage errors fall back to 1.
const (
	exitValidation = 1 // bad arguments or unknown tool
	exitRuntime    = 2 // server failure or an upstream is down
	exitConfig     = 3 // configuration could not be loaded
	exitToolFailed = 4 // tool returned a top-level error
)

// ExitError carries the process exit code for main alongside the message
// printed by cobra.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying failure, if any.
func (e *ExitError) Unwrap() error {
	return e.Cause
}

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// exitWith wraps err, keeping it reachable through errors.Is/As.
func exitWith(code int, err error) *ExitError {
	return &ExitError{Code: code, Message: err.Error(), Cause: err}
}
