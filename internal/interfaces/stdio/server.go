// Package stdio serves the MCP protocol over standard input and output.
package stdio

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/logging"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/server"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/usecases"
)

// StdioContextFunc is a function that takes an existing context and returns
// a potentially modified context.
type StdioContextFunc func(ctx context.Context) context.Context

// StdioServer reads one JSON-RPC request per line and writes one response
// per line. Requests are handled strictly in order.
type StdioServer struct {
	processor     *MessageProcessor
	logger        *logging.Logger
	contextFunc   StdioContextFunc
	extraHandlers map[string]MethodHandlerFunc
}

// NewStdioServer creates a stdio server for service.
func NewStdioServer(service *usecases.ServerService, opts ...StdioOption) *StdioServer {
	s := &StdioServer{
		logger: logging.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.processor = NewMessageProcessor(service, s.logger)
	for method, handler := range s.extraHandlers {
		s.processor.RegisterHandler(method, handler)
	}

	return s
}

// Listen serves requests from stdin until end of input or until ctx is done.
// End of input is a clean shutdown and returns nil.
func (s *StdioServer) Listen(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if s.contextFunc != nil {
		ctx = s.contextFunc(ctx)
	}

	transport := server.NewLineTransport(stdin, stdout)
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for {
			line, err := transport.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping stdio server")
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				var err error
				select {
				case err = <-readErr:
				default:
					return ctx.Err()
				}
				if err == io.EOF {
					s.logger.Info("Input stream closed")
					return nil
				}
				s.logger.Error("Error reading input", logging.Fields{"error": err.Error()})
				return err
			}

			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}

			resp := s.processor.Process(ctx, line)
			if err := transport.Send(resp); err != nil {
				s.logger.Error("Failed to write response", logging.Fields{"error": err.Error()})
				return errors.Wrap(err, "writing response")
			}
		}
	}
}

// ServeStdio serves on the process's standard streams until end of input or
// until ctx is done.
func (s *StdioServer) ServeStdio(ctx context.Context) error {
	s.logger.Info("Serving MCP over stdio")
	return s.Listen(ctx, os.Stdin, os.Stdout)
}
