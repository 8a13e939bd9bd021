// Package mcp implements an MCP (Model Context Protocol) server over stdio
// that lets coding agents list extensions and run their commands.
package mcp

import (
	"encoding/json"
	"fmt"
)

const jsonrpcVersion = "2.0"

// Error codes defined by JSON-RPC 2.0.
const (
	ErrCodeParse         = -32700
	ErrCodeInvalidReq    = -32600
	ErrCodeNoMethod      = -32601
	ErrCodeInvalidParams = -32602
	ErrCodeInternal      = -32603
)

// Request is one line of input. Notifications carry no id.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *Request) IsNotification() bool { return len(r.ID) == 0 }

// validate checks the envelope fields dispatch relies on.
func (r *Request) validate() *RPCError {
	switch {
	case r.JSONRPC != jsonrpcVersion:
		return rpcError(ErrCodeInvalidReq, "unsupported jsonrpc version %q", r.JSONRPC)
	case r.Method == "":
		return rpcError(ErrCodeInvalidReq, "method is required")
	}
	return nil
}

// Response answers a Request with either Result or Error set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a Response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc %d: %s", e.Code, e.Message)
}

func rpcError(code int, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func reply(id json.RawMessage, result any) Response {
	return Response{JSONRPC: jsonrpcVersion, ID: id, Result: result}
}

func replyError(id json.RawMessage, err *RPCError) Response {
	return Response{JSONRPC: jsonrpcVersion, ID: id, Error: err}
}
