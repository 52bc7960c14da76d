package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

const (
	serverName     = "couchdb-mcp"
	serverVersion  = "1.0.0"
	jsonRPCVersion = "2.0"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeRateLimited    = -32000
)

// Request is a JSON-RPC 2.0 request or notification (no id).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a Response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

var nullID = json.RawMessage("null")

func (r *Request) isNotification() bool {
	return len(r.ID) == 0
}

// HandleMessage processes one JSON-RPC message.
func (s *mcpServerImpl) HandleMessage(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse(nullID, CodeParseError, "parse error: "+err.Error())
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		id := req.ID
		if len(id) == 0 {
			id = nullID
		}
		return errorResponse(id, CodeInvalidRequest, "invalid request")
	}

	result, rpcErr := s.handleRequest(ctx, &req)
	if req.isNotification() {
		return nil
	}
	if rpcErr != nil {
		return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Error: rpcErr}
	}
	return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result}
}

func (s *mcpServerImpl) handleRequest(ctx context.Context, req *Request) (interface{}, *RPCError) {
	switch req.Method {
	case "initialize":
		return map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{"listChanged": false},
			},
			"serverInfo": map[string]interface{}{
				"name":    serverName,
				"version": serverVersion,
			},
		}, nil

	case "ping":
		return map[string]interface{}{}, nil

	case "tools/list":
		list, err := s.ListTools(ctx)
		if err != nil {
			return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
		return map[string]interface{}{"tools": list}, nil

	case "tools/call":
		var params callParams
		if len(req.Params) == 0 {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "params are required"}
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
		}
		if params.Name == "" {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "tool name is required"}
		}
		result, err := s.ExecuteTool(ctx, params.Name, params.Arguments)
		if errors.Is(err, ErrRateLimited) {
			return nil, &RPCError{Code: CodeRateLimited, Message: err.Error()}
		}
		if err != nil {
			return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
		return result, nil
	}

	if strings.HasPrefix(req.Method, "notifications/") {
		return nil, nil
	}

	s.logger.Debug("unknown method", zap.String("method", req.Method))
	return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}
