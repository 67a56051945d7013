package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/petal-labs/npmsentinel/tool"
)

type echoArgs struct {
	Packages []string `json:"packages" jsonschema:"required"`
}

type listedTools struct {
	Tools []struct {
		Name        string         `json:"name"`
		Title       string         `json:"title"`
		InputSchema map[string]any `json:"inputSchema"`
		Annotations map[string]any `json:"annotations"`
	} `json:"tools"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	echo := tool.New("echo", "Echo packages.", func(_ context.Context, args echoArgs) (tool.Result, error) {
		if len(args.Packages) == 0 {
			return tool.Result{}, tool.NewToolError(tool.ToolErrorCodeInvalidArguments, "no packages provided", nil)
		}
		return tool.Result{Text: "# Echo\n\n" + strings.Join(args.Packages, ",")}, nil
	}, tool.WithTitle("Echo"))

	registry, err := tool.NewRegistry(echo)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	srv, err := NewServer(ServerConfig{
		Registry: registry,
		Version:  "test",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

// serveLines runs the server over the given request lines and returns the
// responses keyed by their raw id.
func serveLines(t *testing.T, lines ...string) map[string]Message {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	if err := newTestServer(t).Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	responses := map[string]Message{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("response %q is not JSON: %v", line, err)
		}
		if msg.JSONRPC != "2.0" {
			t.Fatalf("response jsonrpc = %q", msg.JSONRPC)
		}
		responses[string(msg.ID)] = msg
	}
	return responses
}

func decodeResult[T any](t *testing.T, msg Message) T {
	t.Helper()
	if msg.Error != nil {
		t.Fatalf("unexpected rpc error: %v", msg.Error)
	}
	var out T
	if err := json.Unmarshal(msg.Result, &out); err != nil {
		t.Fatalf("Unmarshal(result) error = %v", err)
	}
	return out
}

func TestInitializeAndList(t *testing.T) {
	responses := serveLines(t,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":"list","method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
	)
	if len(responses) != 3 {
		t.Fatalf("responses = %d, want 3 (notifications get none)", len(responses))
	}

	init := decodeResult[InitializeResult](t, responses["1"])
	if init.ProtocolVersion != "2024-11-05" {
		t.Fatalf("protocolVersion = %q, want echoed 2024-11-05", init.ProtocolVersion)
	}
	if init.ServerInfo.Name != "npmsentinel" || init.Capabilities["tools"] == nil {
		t.Fatalf("initialize result = %+v", init)
	}

	list := decodeResult[listedTools](t, responses[`"list"`])
	if len(list.Tools) != 1 || list.Tools[0].Name != "echo" || list.Tools[0].Title != "Echo" {
		t.Fatalf("tools = %+v", list.Tools)
	}
	if list.Tools[0].InputSchema["type"] != "object" {
		t.Fatalf("inputSchema = %v", list.Tools[0].InputSchema)
	}
	if list.Tools[0].Annotations["readOnlyHint"] != true {
		t.Fatalf("annotations = %v", list.Tools[0].Annotations)
	}

	if _, ok := responses["3"]; !ok {
		t.Fatal("ping got no response")
	}
}

func TestInitializeDefaultsProtocolVersion(t *testing.T) {
	responses := serveLines(t, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	init := decodeResult[InitializeResult](t, responses["1"])
	if init.ProtocolVersion != LatestProtocolVersion {
		t.Fatalf("protocolVersion = %q, want %q", init.ProtocolVersion, LatestProtocolVersion)
	}
}

func TestToolsCall(t *testing.T) {
	responses := serveLines(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"packages":["a","b"]}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"packages":[]}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"packages":"a"}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"missing"}}`,
	)

	ok := decodeResult[ToolsCallResult](t, responses["1"])
	if ok.IsError || len(ok.Content) != 1 || ok.Content[0].Type != "text" || !strings.HasSuffix(ok.Content[0].Text, "a,b") {
		t.Fatalf("success result = %+v", ok)
	}

	empty := decodeResult[ToolsCallResult](t, responses["2"])
	if !empty.IsError || empty.Content[0].Text != "Error: no packages provided" {
		t.Fatalf("empty result = %+v", empty)
	}

	mismatch := decodeResult[ToolsCallResult](t, responses["3"])
	if !mismatch.IsError || !strings.Contains(mismatch.Content[0].Text, "packages: must be an array") {
		t.Fatalf("mismatch result = %+v", mismatch)
	}

	unknown := responses["4"]
	if unknown.Error == nil || unknown.Error.Code != CodeInvalidParams {
		t.Fatalf("unknown tool response = %+v, want -32602", unknown)
	}
}

func TestProtocolErrors(t *testing.T) {
	responses := serveLines(t,
		`{not json`,
		`{"jsonrpc":"2.0","id":2}`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":1}}`,
	)
	if len(responses) != 3 {
		t.Fatalf("responses = %d, want 3", len(responses))
	}
	wants := map[string]int{
		"null": CodeParseError,
		"2":    CodeInvalidRequest,
		"3":    CodeMethodNotFound,
	}
	for id, code := range wants {
		msg, ok := responses[id]
		if !ok || msg.Error == nil || msg.Error.Code != code {
			t.Fatalf("response %s = %+v, want error code %d", id, msg, code)
		}
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t)
	reader, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, reader, io.Discard)
	}()
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Serve() error = %v, want context.Canceled", err)
	}
}
