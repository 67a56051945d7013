// Package upstream contains the HTTP clients for the public package APIs:
// the npm registry and downloads API, bundlephobia, OSV, npms.io, and GitHub.
//
// Every response body is validated against the shape reflected from its Go
// decode target before any field is read. Failures are *tool.ToolError values
// whose Reason is suitable for a per-package report section.
//
// There is no retry and no caching: each call is a single best-effort request.
package upstream
