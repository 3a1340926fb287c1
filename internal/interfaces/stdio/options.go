package stdio

import (
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/logging"
)

// StdioOption defines a function type for configuring StdioServer
type StdioOption func(*StdioServer)

// WithLogger sets the logger for the server.
func WithLogger(logger *logging.Logger) StdioOption {
	return func(s *StdioServer) {
		s.logger = logger
	}
}

// WithStdioContextFunc sets a function that customizes the context shared by
// every request.
func WithStdioContextFunc(fn StdioContextFunc) StdioOption {
	return func(s *StdioServer) {
		s.contextFunc = fn
	}
}

// WithMethodHandler registers a handler for a method, replacing the built in
// one if there is one.
func WithMethodHandler(method string, handler MethodHandlerFunc) StdioOption {
	return func(s *StdioServer) {
		if s.extraHandlers == nil {
			s.extraHandlers = make(map[string]MethodHandlerFunc)
		}
		s.extraHandlers[method] = handler
	}
}
