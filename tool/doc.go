// Package tool defines the tool registry and dispatch boundary.
//
// The package is split by concern:
//   - descriptor: name, input schema, annotations, and the bound handler
//   - registry: immutable name -> descriptor lookup and schema-checked dispatch
//   - error: structured invocation errors shared with upstream clients
//   - observability: process-wide observer hooks for invocations and fetches
//
// It is transport-agnostic so the MCP server and the CLI share one dispatch path.
package tool
