package otel

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const tracesPath = "/v1/traces"

// SetupConfig controls trace export.
type SetupConfig struct {
	// Endpoint is the OTLP/HTTP base URL. Empty disables export.
	Endpoint       string
	ServiceName    string
	ServiceVersion string
}

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// Setup installs a batching tracer provider exporting over OTLP/HTTP as the
// global provider. With no endpoint the global no-op provider is left in
// place and the returned shutdown does nothing.
func Setup(ctx context.Context, cfg SetupConfig) (ShutdownFunc, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	endpointURL, err := tracesURL(endpoint)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpointURL))
	if err != nil {
		return nil, fmt.Errorf("creating otlp trace exporter: %w", err)
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
	otelapi.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// tracesURL appends the traces signal path when the endpoint carries no path,
// matching OTEL_EXPORTER_OTLP_ENDPOINT semantics.
func tracesURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid otlp endpoint %q", endpoint)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = tracesPath
	}
	return u.String(), nil
}
