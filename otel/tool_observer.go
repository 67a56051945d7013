package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/npmsentinel/tool"
)

// ToolObserver records tool dispatches, upstream requests, and health
// probes into OpenTelemetry.
type ToolObserver struct {
	tracer trace.Tracer

	invocations    metric.Int64Counter
	itemFailures   metric.Int64Counter
	latency        metric.Float64Histogram
	requests       metric.Int64Counter
	requestLatency metric.Float64Histogram
	healthChecks   metric.Int64Counter
	upstreamUp     metric.Int64Gauge
}

// NewToolObserver creates a tool observer bound to the provided meter/tracer.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	invocations, err := meter.Int64Counter(
		"npmsentinel.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	itemFailures, err := meter.Int64Counter(
		"npmsentinel.tool.item_failures",
		metric.WithDescription("Number of per-package failures inside tool reports"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"npmsentinel.tool.latency",
		metric.WithDescription("Tool latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	requests, err := meter.Int64Counter(
		"npmsentinel.upstream.requests",
		metric.WithDescription("Number of upstream HTTP requests"),
	)
	if err != nil {
		return nil, err
	}
	requestLatency, err := meter.Float64Histogram(
		"npmsentinel.upstream.latency",
		metric.WithDescription("Upstream request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	healthChecks, err := meter.Int64Counter(
		"npmsentinel.upstream.health.checks",
		metric.WithDescription("Number of upstream health probes"),
	)
	if err != nil {
		return nil, err
	}
	upstreamUp, err := meter.Int64Gauge(
		"npmsentinel.upstream.up",
		metric.WithDescription("1 when the last probe found the upstream reachable, else 0"),
	)
	if err != nil {
		return nil, err
	}

	return &ToolObserver{
		tracer:         tracer,
		invocations:    invocations,
		itemFailures:   itemFailures,
		latency:        latency,
		requests:       requests,
		requestLatency: requestLatency,
		healthChecks:   healthChecks,
		upstreamUp:     upstreamUp,
	}, nil
}

// ObserveInvoke records one dispatch result.
func (o *ToolObserver) ObserveInvoke(observation tool.ToolInvokeObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, seconds(observation.DurationMS), options)
	if observation.Failures > 0 {
		o.itemFailures.Add(ctx, int64(observation.Failures), metric.WithAttributes(attribute.String("tool_name", observation.ToolName)))
	}

	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(append(attrs,
		attribute.String("request_id", observation.RequestID),
		attribute.Int("items", observation.Items),
		attribute.Int("item_failures", observation.Failures),
	)...))
	if !observation.Success {
		span.SetStatus(codes.Error, observation.ErrorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ObserveUpstream records one outbound request. The request span itself is
// created by the upstream client.
func (o *ToolObserver) ObserveUpstream(observation tool.UpstreamObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("upstream", observation.Upstream),
		attribute.String("operation", observation.Operation),
		attribute.Bool("success", observation.Success),
	}
	if observation.StatusCode > 0 {
		attrs = append(attrs, attribute.Int("status_code", observation.StatusCode))
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.requests.Add(ctx, 1, options)
	o.requestLatency.Record(ctx, seconds(observation.DurationMS), options)
}

// ObserveHealth records one upstream probe.
func (o *ToolObserver) ObserveHealth(observation tool.HealthObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("upstream", observation.Upstream),
		attribute.Bool("up", observation.Up),
		attribute.Bool("changed", observation.Changed),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	o.healthChecks.Add(ctx, 1, metric.WithAttributes(attrs...))
	up := int64(0)
	if observation.Up {
		up = 1
	}
	o.upstreamUp.Record(ctx, up, metric.WithAttributes(attribute.String("upstream", observation.Upstream)))

	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, "upstream.health.check", trace.WithAttributes(append(attrs,
		attribute.Int("status_code", observation.StatusCode),
		attribute.Float64("duration_s", observation.Duration.Seconds()),
	)...))
	if !observation.Up {
		span.SetStatus(codes.Error, observation.ErrorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func seconds(ms int64) float64 {
	return float64(time.Duration(ms)*time.Millisecond) / float64(time.Second)
}

var _ tool.Observer = (*ToolObserver)(nil)
