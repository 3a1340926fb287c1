package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/logging"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/usecases"
)

// MethodHandlerFunc handles one JSON-RPC method.
type MethodHandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, *domain.JSONRPCError)

// MessageProcessor turns one request line into exactly one response.
type MessageProcessor struct {
	service  *usecases.ServerService
	logger   *logging.Logger
	handlers map[string]MethodHandlerFunc
}

// NewMessageProcessor creates a processor serving the standard methods.
func NewMessageProcessor(service *usecases.ServerService, logger *logging.Logger) *MessageProcessor {
	p := &MessageProcessor{
		service:  service,
		logger:   logger,
		handlers: make(map[string]MethodHandlerFunc),
	}

	p.RegisterHandler(domain.MethodInitialize, p.handleInitialize)
	p.RegisterHandler(domain.MethodListTools, p.handleToolsList)
	p.RegisterHandler(domain.MethodCallTool, p.handleToolsCall)
	p.RegisterHandler(domain.MethodPing, p.handlePing)

	return p
}

// RegisterHandler registers a handler for a method, replacing any existing one.
func (p *MessageProcessor) RegisterHandler(method string, handler MethodHandlerFunc) {
	p.handlers[method] = handler
}

// Process handles a single request line. It never panics and always returns
// a response carrying the request id, or null when the id could not be read.
func (p *MessageProcessor) Process(ctx context.Context, line []byte) (resp domain.JSONRPCResponse) {
	log := p.logger.With(logging.Fields{"request_id": uuid.NewString()})

	var req domain.JSONRPCRequest
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic while processing request", logging.Fields{
				"method": req.Method,
				"panic":  fmt.Sprint(r),
			})
			resp = domain.CreateErrorResponse(req.ID, &domain.JSONRPCError{
				Code:    domain.InternalErrorCode,
				Message: "Internal error",
				Data:    fmt.Sprint(r),
			})
		}
	}()

	if err := json.Unmarshal(line, &req); err != nil {
		log.Warn("Failed to decode request", logging.Fields{"error": err.Error()})
		return domain.CreateErrorResponse(readID(line), &domain.JSONRPCError{
			Code:    domain.InternalErrorCode,
			Message: "Internal error",
			Data:    err.Error(),
		})
	}

	if req.Method == "" {
		log.Warn("Request without method")
		return domain.CreateErrorResponse(req.ID, domain.NewJSONRPCError(domain.InternalErrorCode, "Invalid request: missing method"))
	}

	log = log.With(logging.Fields{"method": req.Method})
	handler, ok := p.handlers[req.Method]
	if !ok {
		log.Warn("Unknown method")
		return domain.CreateErrorResponse(req.ID, domain.NewJSONRPCError(domain.InternalErrorCode, "Unknown method: "+req.Method))
	}

	log.Debug("Handling request")
	result, rpcErr := handler(ctx, req.Params)
	if rpcErr != nil {
		log.Warn("Request failed", logging.Fields{"code": rpcErr.Code, "error": rpcErr.Message})
		return domain.CreateErrorResponse(req.ID, rpcErr)
	}
	return domain.CreateResponse(req.ID, result)
}

// readID extracts the id of a line that is valid JSON but not a valid
// request, for example one whose method is not a string.
func readID(line []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil
	}
	return probe.ID
}

func (p *MessageProcessor) handleInitialize(ctx context.Context, params json.RawMessage) (interface{}, *domain.JSONRPCError) {
	return p.service.Initialize(), nil
}

func (p *MessageProcessor) handlePing(ctx context.Context, params json.RawMessage) (interface{}, *domain.JSONRPCError) {
	return map[string]bool{"success": true}, nil
}

func (p *MessageProcessor) handleToolsList(ctx context.Context, params json.RawMessage) (interface{}, *domain.JSONRPCError) {
	return map[string]interface{}{"tools": p.service.ListTools()}, nil
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (p *MessageProcessor) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, *domain.JSONRPCError) {
	var call toolCallParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &call); err != nil {
			return nil, &domain.JSONRPCError{Code: domain.InvalidParamsCode, Message: "Invalid params", Data: err.Error()}
		}
	}
	if call.Name == "" {
		return nil, domain.NewJSONRPCError(domain.InvalidParamsCode, "Missing or invalid 'name' parameter")
	}
	args := bytes.TrimSpace(call.Arguments)
	if len(args) > 0 && args[0] != '{' && string(args) != "null" {
		return nil, domain.NewJSONRPCError(domain.InvalidParamsCode, "Invalid 'arguments' parameter: expected an object")
	}

	result, err := p.service.CallTool(ctx, call.Name, args)
	if err != nil {
		return nil, domain.NewJSONRPCError(domain.InternalErrorCode, err.Error())
	}
	return result, nil
}
