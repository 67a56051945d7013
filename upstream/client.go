package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/npmsentinel/schema"
	"github.com/petal-labs/npmsentinel/tool"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "npmsentinel/dev"
	maxBodyBytes     = 64 << 20
	maxErrorSnippet  = 200
	tracerName       = "github.com/petal-labs/npmsentinel/upstream"
)

// Config configures a Client.
type Config struct {
	Endpoints   Endpoints
	Timeout     time.Duration
	UserAgent   string
	GitHubToken string
	// HTTPClient overrides the shared pooled client; used by tests.
	HTTPClient *http.Client
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client issues single best-effort requests to the upstream APIs.
type Client struct {
	endpoints   Endpoints
	http        *http.Client
	userAgent   string
	githubToken string
	logger      *slog.Logger
	tracer      trace.Tracer
}

// New creates a Client. Zero-valued config fields take defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = pooledClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		endpoints:   cfg.Endpoints.WithDefaults(),
		http:        cfg.HTTPClient,
		userAgent:   cfg.UserAgent,
		githubToken: strings.TrimSpace(cfg.GitHubToken),
		logger:      cfg.Logger,
		tracer:      otel.Tracer(tracerName),
	}
}

// Endpoints returns the resolved endpoints.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

type request struct {
	upstream  string
	operation string
	method    string
	url       string
	body      any
	header    http.Header
	// notFound is the reason reported for a 404.
	notFound string
}

// fetch performs req and decodes the validated body into out.
func (c *Client) fetch(ctx context.Context, req request, shape schema.Field, out any) error {
	ctx, span := c.tracer.Start(ctx, "upstream."+req.operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("upstream", req.upstream),
			attribute.String("http.request.method", req.method),
			attribute.String("url.full", req.url),
		),
	)
	defer span.End()

	start := time.Now()
	status, err := c.roundTrip(ctx, req, shape, out)
	elapsed := time.Since(start)

	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	errCode := tool.ErrorCode(err)
	if err != nil {
		span.SetStatus(codes.Error, errCode)
		span.RecordError(err)
		c.logger.DebugContext(ctx, "upstream request failed",
			"upstream", req.upstream,
			"operation", req.operation,
			"url", req.url,
			"status", status,
			"error_code", errCode,
			"error", err,
		)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	tool.EmitUpstream(tool.UpstreamObservation{
		Upstream:   req.upstream,
		Operation:  req.operation,
		RequestID:  tool.RequestIDFrom(ctx),
		StatusCode: status,
		DurationMS: elapsed.Milliseconds(),
		Success:    err == nil,
		ErrorCode:  errCode,
	})
	return err
}

func (c *Client) roundTrip(ctx context.Context, req request, shape schema.Field, out any) (int, error) {
	name := DisplayName(req.upstream)

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return 0, tool.NewToolError(tool.ToolErrorCodeInvalidArguments, fmt.Sprintf("encode %s request: %v", name, err), err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return 0, tool.NewToolError(tool.ToolErrorCodeInvalidArguments, fmt.Sprintf("build %s request: %v", name, err), err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, values := range req.header {
		for _, value := range values {
			httpReq.Header.Set(key, value)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, transportError(name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, transportError(name, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		reason := req.notFound
		if reason == "" {
			reason = fmt.Sprintf("not found on %s", name)
		}
		return resp.StatusCode, tool.WithDetails(
			tool.NewToolError(tool.ToolErrorCodeNotFound, reason, nil),
			map[string]any{"status": resp.StatusCode, "upstream": req.upstream},
		)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, statusError(name, req.upstream, resp, data)
	}

	if err := schema.DecodeJSON(data, shape, out); err != nil {
		return resp.StatusCode, decodeError(name, err)
	}
	return resp.StatusCode, nil
}

func transportError(name string, err error) *tool.ToolError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return tool.NewToolError(tool.ToolErrorCodeTimeout, fmt.Sprintf("request to %s timed out", name), err)
	}
	return tool.NewToolError(tool.ToolErrorCodeTransportFailure, fmt.Sprintf("%s unreachable: %v", name, err), err)
}

func statusError(name, upstream string, resp *http.Response, body []byte) *tool.ToolError {
	message := fmt.Sprintf("%s returned status %d", name, resp.StatusCode)
	if upstream == GitHub && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		message += " (rate limited; set GITHUB_TOKEN to raise the limit)"
	} else if snippet := errorSnippet(body); snippet != "" {
		message += ": " + snippet
	}
	return tool.WithDetails(
		tool.NewToolError(tool.ToolErrorCodeUpstreamFailure, message, nil),
		map[string]any{"status": resp.StatusCode, "upstream": upstream},
	)
}

func decodeError(name string, err error) *tool.ToolError {
	var validationErr *schema.ValidationError
	if errors.As(err, &validationErr) {
		return tool.NewToolError(tool.ToolErrorCodeShapeMismatch,
			fmt.Sprintf("%s response has unexpected shape: %s", name, validationErr.Summary()), err)
	}
	if errors.Is(err, schema.ErrInvalidJSON) {
		return tool.NewToolError(tool.ToolErrorCodeDecodeFailure, fmt.Sprintf("%s returned malformed JSON", name), err)
	}
	return tool.NewToolError(tool.ToolErrorCodeDecodeFailure, fmt.Sprintf("decode %s response: %v", name, err), err)
}

// errorSnippet extracts a short upstream error message from a JSON or text body.
func errorSnippet(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "message"} {
			if value := gjson.GetBytes(body, path); value.Type == gjson.String && value.Str != "" {
				return truncate(value.Str, maxErrorSnippet)
			}
		}
		return ""
	}
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "<") {
		return ""
	}
	return truncate(text, maxErrorSnippet)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
