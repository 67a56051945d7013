package report

import (
	"fmt"
	"strings"
)

// Lines accumulates "Label: value" rows for a section body, skipping empty values.
type Lines struct {
	b strings.Builder
}

// Add appends a labelled row when value is non-empty.
func (l *Lines) Add(label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	l.line(label + ": " + value)
}

// Addf appends a labelled row built from a format string.
func (l *Lines) Addf(label, format string, args ...any) {
	l.Add(label, fmt.Sprintf(format, args...))
}

// Text appends a raw line.
func (l *Lines) Text(text string) {
	l.line(text)
}

// List appends a labelled bullet list, or "Label: none" when empty.
func (l *Lines) List(label string, items []string) {
	if len(items) == 0 {
		l.line(label + ": none")
		return
	}
	l.line(label + ":")
	for _, item := range items {
		l.line("- " + item)
	}
}

func (l *Lines) String() string {
	return l.b.String()
}

func (l *Lines) line(s string) {
	if l.b.Len() > 0 {
		l.b.WriteByte('\n')
	}
	l.b.WriteString(s)
}
