// Package report renders ordered per-item results into one text block.
package report

import (
	"strings"

	"github.com/petal-labs/npmsentinel/fanout"
)

// Delimiter separates sections in a rendered report.
const Delimiter = "\n\n---\n\n"

// Section is one rendered item.
type Section struct {
	Heading string
	Body    string
	Failed  bool
}

// Report is an ordered sequence of sections with an optional title and summary.
type Report struct {
	Title    string
	Sections []Section
	Summary  string
}

// Success returns a section for a successful item.
func Success(heading, body string) Section {
	return Section{Heading: heading, Body: body}
}

// Failure returns a section for a failed item.
func Failure(heading, reason string) Section {
	return Section{Heading: heading, Body: "Error: " + reason, Failed: true}
}

// FromResults builds a report with one section per result, in input order.
func FromResults[T any](title string, results []fanout.Result[T], render func(item string, value T) string) Report {
	r := Report{Title: title, Sections: make([]Section, 0, len(results))}
	for _, result := range results {
		if !result.OK() {
			r.Sections = append(r.Sections, Failure(result.Item, fanout.Reason(result.Err)))
			continue
		}
		r.Sections = append(r.Sections, Success(result.Item, render(result.Item, result.Value)))
	}
	return r
}

// Failures counts failed sections.
func (r Report) Failures() int {
	n := 0
	for _, s := range r.Sections {
		if s.Failed {
			n++
		}
	}
	return n
}

// String renders the report deterministically.
func (r Report) String() string {
	blocks := make([]string, 0, len(r.Sections)+2)
	if title := strings.TrimSpace(r.Title); title != "" {
		blocks = append(blocks, "# "+title)
	}
	for _, s := range r.Sections {
		blocks = append(blocks, s.String())
	}
	if summary := strings.TrimSpace(r.Summary); summary != "" {
		blocks = append(blocks, "## Summary\n"+summary)
	}
	return strings.Join(blocks, Delimiter)
}

func (s Section) String() string {
	body := strings.TrimRight(s.Body, "\n")
	if body == "" {
		return "## " + s.Heading
	}
	return "## " + s.Heading + "\n" + body
}
