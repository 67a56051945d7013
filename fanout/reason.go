package fanout

import (
	"errors"
	"strings"
)

// Reasoner is implemented by errors that carry their own user-facing text.
type Reasoner interface {
	Reason() string
}

// Reason renders err as a one-line human-readable failure reason.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrItemTimeout) {
		return "request timed out"
	}
	var reasoner Reasoner
	if errors.As(err, &reasoner) {
		if reason := strings.TrimSpace(reasoner.Reason()); reason != "" {
			return reason
		}
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown error"
	}
	return strings.ReplaceAll(msg, "\n", " ")
}
