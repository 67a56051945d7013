package upstream

import (
	"context"
	"net/http"
	"strings"

	"github.com/petal-labs/npmsentinel/schema"
)

// VulnerabilityList is the OSV query response. An empty object means no
// known vulnerabilities.
type VulnerabilityList struct {
	Vulns []Vulnerability `json:"vulns,omitempty"`
}

// Vulnerability is one OSV advisory.
type Vulnerability struct {
	ID               string         `json:"id" jsonschema:"required"`
	Summary          string         `json:"summary,omitempty"`
	Details          string         `json:"details,omitempty"`
	Aliases          []string       `json:"aliases,omitempty"`
	Published        string         `json:"published,omitempty"`
	Modified         string         `json:"modified,omitempty"`
	Severity         []OSVSeverity  `json:"severity,omitempty"`
	DatabaseSpecific map[string]any `json:"database_specific,omitempty"`
}

// OSVSeverity is one scored severity entry.
type OSVSeverity struct {
	Type  string `json:"type" jsonschema:"required"`
	Score string `json:"score" jsonschema:"required"`
}

// SeverityLabel prefers the advisory database's label (e.g. "HIGH") and falls
// back to the first scored entry.
func (v Vulnerability) SeverityLabel() string {
	if label, ok := v.DatabaseSpecific["severity"].(string); ok && strings.TrimSpace(label) != "" {
		return strings.ToUpper(strings.TrimSpace(label))
	}
	if len(v.Severity) > 0 {
		return v.Severity[0].Type + " " + v.Severity[0].Score
	}
	return "UNKNOWN"
}

type osvQuery struct {
	Package osvPackage `json:"package"`
	Version string     `json:"version,omitempty"`
}

type osvPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

var vulnerabilityListShape = schema.Reflect[VulnerabilityList]()

// Vulnerabilities queries OSV for advisories affecting name. An empty
// version matches every version.
func (c *Client) Vulnerabilities(ctx context.Context, name, version string) (*VulnerabilityList, error) {
	var out VulnerabilityList
	err := c.fetch(ctx, request{
		upstream:  OSV,
		operation: "query",
		method:    http.MethodPost,
		url:       c.endpoints.OSV + "/v1/query",
		body: osvQuery{
			Package: osvPackage{Name: name, Ecosystem: "npm"},
			Version: version,
		},
	}, vulnerabilityListShape, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
