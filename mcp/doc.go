// Package mcp serves a tool registry over the Model Context Protocol's
// stdio transport: newline-delimited JSON-RPC 2.0 messages.
//
// Unknown tools are protocol errors (-32602). Argument schema mismatches and
// top-level handler errors are tool results with isError set, so the calling
// model sees the message.
package mcp
