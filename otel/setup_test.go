package otel_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	petalotel "github.com/petal-labs/npmsentinel/otel"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := petalotel.Setup(context.Background(), petalotel.SetupConfig{ServiceName: "npmsentinel"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}

func TestSetupRejectsInvalidEndpoint(t *testing.T) {
	if _, err := petalotel.Setup(context.Background(), petalotel.SetupConfig{Endpoint: "collector:4318"}); err == nil {
		t.Fatal("Setup() error = nil, want invalid endpoint error")
	}
}

func TestSetupExportsSpansToTracesPath(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()
	t.Cleanup(func() { otelapi.SetTracerProvider(noop.NewTracerProvider()) })

	shutdown, err := petalotel.Setup(context.Background(), petalotel.SetupConfig{
		Endpoint:       collector.URL,
		ServiceName:    "npmsentinel-test",
		ServiceVersion: "v0.0.1",
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	_, span := otelapi.Tracer("test").Start(context.Background(), "probe")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) == 0 {
		t.Fatal("collector received no export requests")
	}
	if paths[0] != "/v1/traces" {
		t.Fatalf("export path = %q, want /v1/traces", paths[0])
	}
}
