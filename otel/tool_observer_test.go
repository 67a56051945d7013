package otel_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	petalotel "github.com/petal-labs/npmsentinel/otel"
	"github.com/petal-labs/npmsentinel/tool"
)

// newTestMeter returns a MeterProvider backed by a ManualReader for testing.
func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s type = %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestToolObserverRecordsMetrics(t *testing.T) {
	reader, mp := newTestMeter()
	meter := mp.Meter("test-tool-observer")
	tracer := noop.NewTracerProvider().Tracer("test-tool-observer")

	observer, err := petalotel.NewToolObserver(meter, tracer)
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	observer.ObserveInvoke(tool.ToolInvokeObservation{
		ToolName:   "npmVersions",
		RequestID:  "req-1",
		DurationMS: 120,
		Success:    true,
		Items:      3,
		Failures:   2,
	})
	observer.ObserveInvoke(tool.ToolInvokeObservation{
		ToolName:   "npmSearch",
		DurationMS: 5,
		Success:    false,
		ErrorCode:  tool.ToolErrorCodeInvalidArguments,
	})
	observer.ObserveUpstream(tool.UpstreamObservation{
		Upstream:   "registry",
		Operation:  "packument",
		StatusCode: 200,
		DurationMS: 40,
		Success:    true,
	})
	observer.ObserveHealth(tool.HealthObservation{
		Upstream:   "osv",
		Up:         false,
		StatusCode: 503,
		Duration:   80 * time.Millisecond,
		Changed:    true,
		ErrorCode:  tool.ToolErrorCodeUpstreamFailure,
	})

	rm := collectMetrics(t, reader)

	for name, want := range map[string]int64{
		"npmsentinel.tool.invocations":       2,
		"npmsentinel.tool.item_failures":     2,
		"npmsentinel.upstream.requests":      1,
		"npmsentinel.upstream.health.checks": 1,
	} {
		m := findMetric(rm, name)
		if m == nil {
			t.Fatalf("%s metric not found", name)
		}
		if got := sumValue(t, m); got != want {
			t.Fatalf("%s = %d, want %d", name, got, want)
		}
	}

	for _, name := range []string{"npmsentinel.tool.latency", "npmsentinel.upstream.latency"} {
		m := findMetric(rm, name)
		if m == nil {
			t.Fatalf("%s metric not found", name)
		}
		if _, ok := m.Data.(metricdata.Histogram[float64]); !ok {
			t.Fatalf("%s type = %T, want Histogram[float64]", name, m.Data)
		}
	}

	up := findMetric(rm, "npmsentinel.upstream.up")
	if up == nil {
		t.Fatal("npmsentinel.upstream.up metric not found")
	}
	gauge, ok := up.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("npmsentinel.upstream.up type = %T, want Gauge[int64]", up.Data)
	}
	if len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 0 {
		t.Fatalf("npmsentinel.upstream.up points = %+v, want single 0", gauge.DataPoints)
	}
}

func TestToolObserverEmitsSpans(t *testing.T) {
	_, mp := newTestMeter()
	exporter, tp := newTestTracer()

	observer, err := petalotel.NewToolObserver(mp.Meter("test"), tp.Tracer("test"))
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	observer.ObserveInvoke(tool.ToolInvokeObservation{
		ToolName:  "npmLatest",
		RequestID: "req-9",
		Success:   false,
		ErrorCode: tool.ToolErrorCodeInvalidArguments,
	})
	observer.ObserveHealth(tool.HealthObservation{Upstream: "registry", Up: true, StatusCode: 200})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("span count = %d, want 2", len(spans))
	}

	invoke := spans[0]
	if invoke.Name != "tool.invoke" {
		t.Fatalf("span name = %q, want tool.invoke", invoke.Name)
	}
	if invoke.Status.Code != otelcodes.Error {
		t.Fatalf("invoke status = %v, want Error", invoke.Status.Code)
	}
	if !hasAttr(invoke.Attributes, attribute.String("request_id", "req-9")) {
		t.Fatalf("invoke attributes missing request_id: %v", invoke.Attributes)
	}

	health := spans[1]
	if health.Name != "upstream.health.check" {
		t.Fatalf("span name = %q, want upstream.health.check", health.Name)
	}
	if health.Status.Code != otelcodes.Ok {
		t.Fatalf("health status = %v, want Ok", health.Status.Code)
	}
}

func TestToolObserverNilSafe(t *testing.T) {
	var observer *petalotel.ToolObserver
	observer.ObserveInvoke(tool.ToolInvokeObservation{ToolName: "npmDeps"})
	observer.ObserveUpstream(tool.UpstreamObservation{Upstream: "osv"})
	observer.ObserveHealth(tool.HealthObservation{Upstream: "osv"})
}

func hasAttr(attrs []attribute.KeyValue, want attribute.KeyValue) bool {
	for _, attr := range attrs {
		if attr.Key == want.Key && attr.Value.Emit() == want.Value.Emit() {
			return true
		}
	}
	return false
}
