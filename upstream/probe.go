package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/npmsentinel/tool"
)

// ProbeResult is the outcome of one reachability check.
type ProbeResult struct {
	Upstream   string
	URL        string
	StatusCode int
	Latency    time.Duration
	CheckedAt  time.Time
	Err        error
}

// Up reports whether the upstream answered below 500. A 4xx still proves the
// service is reachable and serving.
func (r ProbeResult) Up() bool {
	return r.Err == nil && r.StatusCode > 0 && r.StatusCode < http.StatusInternalServerError
}

// ProbeURL returns the URL probed for upstream.
func (c *Client) ProbeURL(upstream string) (string, error) {
	base, ok := c.endpoints.Base(upstream)
	if !ok {
		return "", tool.NewToolError(tool.ToolErrorCodeInvalidArguments, fmt.Sprintf("unknown upstream %q", upstream), nil)
	}
	switch upstream {
	case NPMRegistry:
		return base + "/-/ping", nil
	case NPMDownloads:
		return base + "/downloads/point/last-day/npm", nil
	case GitHub:
		return base + "/rate_limit", nil
	default:
		return base + "/", nil
	}
}

// Probe issues one GET against the upstream's probe URL. Transport errors
// are reported in the result, not returned; the error return is reserved
// for unknown upstream names.
func (c *Client) Probe(ctx context.Context, upstream string) (ProbeResult, error) {
	target, err := c.ProbeURL(upstream)
	if err != nil {
		return ProbeResult{}, err
	}

	ctx, span := c.tracer.Start(ctx, "upstream.probe",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("upstream", upstream),
			attribute.String("url.full", target),
		),
	)
	defer span.End()

	result := ProbeResult{Upstream: upstream, URL: target, CheckedAt: time.Now().UTC()}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result.Err = tool.NewToolError(tool.ToolErrorCodeInvalidArguments, fmt.Sprintf("build probe request: %v", err), err)
		return result, nil
	}
	req.Header.Set("User-Agent", c.userAgent)
	if upstream == GitHub && c.githubToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.githubToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		result.Err = transportError(DisplayName(upstream), err)
		result.Latency = time.Since(start)
		span.SetStatus(codes.Error, tool.ErrorCode(result.Err))
		span.RecordError(err)
		return result, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Latency = time.Since(start)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if !result.Up() {
		result.Err = tool.NewToolError(tool.ToolErrorCodeUpstreamFailure,
			fmt.Sprintf("%s returned status %d", DisplayName(upstream), resp.StatusCode), nil)
		span.SetStatus(codes.Error, tool.ToolErrorCodeUpstreamFailure)
	}
	return result, nil
}
