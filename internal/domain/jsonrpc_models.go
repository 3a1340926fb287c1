package domain

import "encoding/json"

// JSONRPCVersion is the only protocol version spoken by the server.
const JSONRPCVersion = "2.0"

// MCP method names served by the stdio loop
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodListTools  = "tools/list"
	MethodCallTool   = "tools/call"
)

// Standard JSON-RPC error codes
const (
	ParseErrorCode     = -32700
	InvalidRequestCode = -32600
	MethodNotFoundCode = -32601
	InvalidParamsCode  = -32602
	InternalErrorCode  = -32603
)

// JSONRPCRequest represents a JSON-RPC request in the domain layer. ID is kept
// raw so it can be echoed back verbatim.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC response in the domain layer. Exactly
// one of Result and Error is set; ID is always written, as null when unknown.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// JSONRPCError represents a JSON-RPC error in the domain layer.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *JSONRPCError) Error() string {
	return e.Message
}

// NewJSONRPCError creates a new JSONRPCError.
func NewJSONRPCError(code int, message string) *JSONRPCError {
	return &JSONRPCError{Code: code, Message: message}
}

// CreateResponse creates a new JSONRPCResponse with the given ID and result.
func CreateResponse(id json.RawMessage, result interface{}) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      normalizeID(id),
		Result:  result,
	}
}

// CreateErrorResponse creates a new JSONRPCResponse with the given ID and error.
func CreateErrorResponse(id json.RawMessage, rpcErr *JSONRPCError) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      normalizeID(id),
		Error:   rpcErr,
	}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
