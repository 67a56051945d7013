package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/npmsentinel/tool"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Registry *tool.Registry
	Name     string
	Version  string
	// Instructions is returned from initialize as guidance for the client.
	Instructions string
	// Logger defaults to slog.Default(). It must not write to the protocol stream.
	Logger *slog.Logger
}

// Server answers MCP requests over a newline-delimited JSON-RPC stream.
type Server struct {
	registry     *tool.Registry
	info         Implementation
	instructions string
	logger       *slog.Logger

	writeMu sync.Mutex
	out     io.Writer
}

// NewServer creates a Server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("mcp: registry is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "npmsentinel"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		registry:     cfg.Registry,
		info:         Implementation{Name: cfg.Name, Version: cfg.Version},
		instructions: cfg.Instructions,
		logger:       cfg.Logger,
	}, nil
}

// Serve reads requests from in and writes responses to out until in is
// exhausted or ctx is cancelled. Each tools/call runs in its own goroutine;
// Serve waits for in-flight calls before returning.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(in)
		for {
			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- fmt.Errorf("mcp: read request: %w", err)
				}
				return
			}
		}
	}()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			s.handleLine(ctx, line, &inflight)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte, inflight *sync.WaitGroup) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		s.logger.WarnContext(ctx, "mcp: malformed request", "error", err)
		s.writeError(json.RawMessage("null"), CodeParseError, "parse error: "+err.Error())
		return
	}
	if msg.JSONRPC != jsonRPCVersion || strings.TrimSpace(msg.Method) == "" {
		if msg.IsNotification() {
			return
		}
		s.writeError(msg.ID, CodeInvalidRequest, "invalid request: jsonrpc must be \"2.0\" and method is required")
		return
	}

	if msg.Method == MethodToolsCall && !msg.IsNotification() {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			s.handleToolsCall(ctx, msg)
		}()
		return
	}
	s.handle(ctx, msg)
}

func (s *Server) handle(ctx context.Context, msg Message) {
	switch msg.Method {
	case MethodInitialize:
		var params InitializeParams
		if len(msg.Params) > 0 {
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				s.writeError(msg.ID, CodeInvalidParams, "invalid initialize params: "+err.Error())
				return
			}
		}
		version := strings.TrimSpace(params.ProtocolVersion)
		if version == "" {
			version = LatestProtocolVersion
		}
		s.logger.InfoContext(ctx, "mcp: client initialized",
			"client", params.ClientInfo.Name,
			"client_version", params.ClientInfo.Version,
			"protocol_version", version,
		)
		s.writeResult(msg.ID, InitializeResult{
			ProtocolVersion: version,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      s.info,
			Instructions:    s.instructions,
		})
	case MethodPing:
		s.writeResult(msg.ID, struct{}{})
	case MethodToolsList:
		descriptors := s.registry.List()
		tools := make([]Tool, 0, len(descriptors))
		for _, d := range descriptors {
			tools = append(tools, toolFromDescriptor(d))
		}
		s.writeResult(msg.ID, ToolsListResult{Tools: tools})
	default:
		if msg.IsNotification() {
			// notifications/initialized, notifications/cancelled, and unknown
			// notifications need no answer.
			return
		}
		s.writeError(msg.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", msg.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, msg Message) {
	var params ToolsCallParams
	if err := json.Unmarshal(msg.Params, &params); err != nil || strings.TrimSpace(params.Name) == "" {
		s.writeError(msg.ID, CodeInvalidParams, "invalid tools/call params: name is required")
		return
	}

	requestID := uuid.NewString()
	ctx = tool.WithRequestID(ctx, requestID)
	logger := s.logger.With("tool", params.Name, "request_id", requestID)

	start := time.Now()
	result, err := s.registry.Dispatch(ctx, params.Name, params.Arguments)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, tool.ErrUnknownTool) {
			logger.WarnContext(ctx, "mcp: unknown tool")
			s.writeError(msg.ID, CodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name))
			return
		}
		logger.InfoContext(ctx, "mcp: tool call failed",
			"duration_ms", elapsed.Milliseconds(),
			"error_code", tool.ErrorCodeOrDefault(err, tool.ToolErrorCodeInvocationFailed),
			"error", err,
		)
		s.writeResult(msg.ID, textResult(errorText(err), true))
		return
	}

	logger.InfoContext(ctx, "mcp: tool call completed",
		"duration_ms", elapsed.Milliseconds(),
		"items", result.Items,
		"failures", result.Failures,
	)
	s.writeResult(msg.ID, textResult(result.Text, false))
}

// errorText renders a top-level tool error without its machine code prefix.
func errorText(err error) string {
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) && toolErr.Message != "" {
		return "Error: " + toolErr.Message
	}
	return "Error: " + err.Error()
}

func (s *Server) writeResult(id json.RawMessage, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		s.writeError(id, CodeInternalError, "encode result: "+err.Error())
		return
	}
	s.write(Message{JSONRPC: jsonRPCVersion, ID: id, Result: data})
}

func (s *Server) writeError(id json.RawMessage, code int, message string) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	s.write(Message{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}})
}

func (s *Server) write(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("mcp: encode response", "error", err)
		return
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		s.logger.Error("mcp: write response", "error", err)
	}
}
