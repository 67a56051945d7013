// Package schema validates untrusted JSON values against declared shapes.
//
// The same Field shape guards both sides of a tool call:
//   - inbound tool arguments, whose shape is reflected from the handler's args struct
//   - outbound third-party payloads, whose shape is reflected from the decode target
//
// Validation never panics and never stops at the first finding; it returns
// every Diagnostic so callers can report all problems at once.
package schema
