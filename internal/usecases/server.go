// Package usecases implements the application logic behind the protocol
// surface of the server.
package usecases

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
)

// ProtocolVersion is the MCP protocol revision the server speaks.
const ProtocolVersion = "2024-11-05"

// ToolDispatcher runs named tools.
type ToolDispatcher interface {
	Tools() []domain.Tool
	Call(ctx context.Context, name string, arguments json.RawMessage) (interface{}, error)
}

// ServerService handles business logic for the MCP server.
type ServerService struct {
	name       string
	version    string
	dispatcher ToolDispatcher
}

// ServerConfig contains configuration for the ServerService.
type ServerConfig struct {
	Name       string
	Version    string
	Dispatcher ToolDispatcher
}

// NewServerService creates a new ServerService.
func NewServerService(config ServerConfig) *ServerService {
	return &ServerService{
		name:       config.Name,
		version:    config.Version,
		dispatcher: config.Dispatcher,
	}
}

// ServerInfo returns the name and version of the server.
func (s *ServerService) ServerInfo() (string, string) {
	return s.name, s.version
}

// InitializeResult describes the server to a connecting client.
type InitializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      ServerInfo             `json:"serverInfo"`
}

// ServerInfo is the name and version block of InitializeResult.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Initialize returns the fixed capability descriptor. It never touches the
// backend.
func (s *ServerService) Initialize() InitializeResult {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		ServerInfo: ServerInfo{Name: s.name, Version: s.version},
	}
}

// ListTools returns the tool catalog.
func (s *ServerService) ListTools() []domain.Tool {
	return s.dispatcher.Tools()
}

// CallTool runs a tool and wraps its JSON encoded result in a text envelope.
// Only an unknown tool name or an unencodable result is returned as an error.
func (s *ServerService) CallTool(ctx context.Context, name string, arguments json.RawMessage) (domain.ToolCallResult, error) {
	result, err := s.dispatcher.Call(ctx, name, arguments)
	if err != nil {
		return domain.ToolCallResult{}, err
	}

	text, err := json.Marshal(result)
	if err != nil {
		return domain.ToolCallResult{}, errors.Wrapf(err, "encoding result of %s", name)
	}
	return domain.NewTextResult(string(text)), nil
}
