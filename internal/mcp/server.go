package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/extdeck/extdeck/internal/host"
)

// Server exposes the launcher's extensions as MCP tools over JSON-RPC 2.0
// on line-delimited stdio.
type Server struct {
	launcher *host.Launcher
	version  string
	tools    []toolEntry
	logger   *slog.Logger
	calls    atomic.Uint64
}

// NewServer creates a server running commands through l.
func NewServer(l *host.Launcher, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		launcher: l,
		version:  version,
		tools:    allTools(),
		logger:   logger,
	}
}

// Serve reads requests from in line by line and writes responses to out.
// It blocks until in is exhausted or ctx is cancelled between requests.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	// Tool results can be large rendered views.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(out, replyError(nil, rpcError(ErrCodeParse, "parse error: %v", err)))
			continue
		}
		if rerr := req.validate(); rerr != nil {
			if !req.IsNotification() {
				writeResponse(out, replyError(req.ID, rerr))
			}
			continue
		}

		resp, shouldReply := s.dispatch(ctx, &req)
		if shouldReply {
			writeResponse(out, resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return nil
}

// dispatch returns the response and whether one should be sent.
// Notifications get none.
func (s *Server) dispatch(ctx context.Context, req *Request) (Response, bool) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req), true
	case "notifications/initialized":
		return Response{}, false
	case "tools/list":
		return s.handleToolsList(req), true
	case "tools/call":
		return s.handleToolsCall(ctx, req), true
	default:
		if req.IsNotification() {
			return Response{}, false
		}
		return replyError(req.ID, rpcError(ErrCodeNoMethod, "method not found: %s", req.Method)), true
	}
}

func (s *Server) handleInitialize(req *Request) Response {
	return reply(req.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "deck-mcp",
			"version": s.version,
		},
	})
}

func (s *Server) handleToolsList(req *Request) Response {
	tools := make([]Tool, len(s.tools))
	for i, t := range s.tools {
		tools[i] = t.Tool
	}
	return reply(req.ID, map[string]any{"tools": tools})
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) (resp Response) {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return replyError(req.ID, rpcError(ErrCodeInvalidParams, "invalid params: %v", err))
	}
	for _, t := range s.tools {
		if t.Tool.Name != params.Name {
			continue
		}
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("tool panicked", "tool", params.Name, "panic", r)
				resp = replyError(req.ID, &RPCError{Code: ErrCodeInternal, Message: "tool " + params.Name + " failed", Data: fmt.Sprint(r)})
			}
		}()
		return reply(req.ID, t.Handler(ctx, s, params.Arguments))
	}
	return replyError(req.ID, rpcError(ErrCodeNoMethod, "unknown tool: %s", params.Name))
}

// writeResponse writes resp as a single line.
func writeResponse(out io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		fmt.Fprintf(out, `{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal marshal error"}}`+"\n")
		return
	}
	fmt.Fprintf(out, "%s\n", data)
}
