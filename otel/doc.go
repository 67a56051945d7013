// Package otel wires npmsentinel's tool, upstream, and health observations
// into OpenTelemetry and configures the OTLP trace exporter.
package otel
