// Package builder wires configuration, backend and protocol loop into a
// runnable server.
package builder

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/config"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/dataverse"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/logging"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/interfaces/stdio"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/usecases"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/usecases/connection"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/usecases/environment"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/usecases/tools"
)

// Defaults for the advertised server identity.
const (
	DefaultName    = "dataverse-metadata-mcp"
	DefaultVersion = "1.0.0"
)

// ServerBuilder implements the Builder pattern for creating the server
type ServerBuilder struct {
	name         string
	version      string
	logger       *logging.Logger
	cfg          *config.Config
	backend      domain.MetadataBackend
	clock        domain.Clock
	pollInterval time.Duration
	stdioOpts    []stdio.StdioOption
}

// NewServerBuilder creates a new server builder with default values
func NewServerBuilder() *ServerBuilder {
	return &ServerBuilder{
		name:         DefaultName,
		version:      DefaultVersion,
		logger:       logging.NewNop(),
		cfg:          &config.Config{},
		clock:        domain.SystemClock{},
		pollInterval: connection.DefaultPollInterval,
	}
}

// WithName sets the server name
func (b *ServerBuilder) WithName(name string) *ServerBuilder {
	b.name = name
	return b
}

// WithVersion sets the server version
func (b *ServerBuilder) WithVersion(version string) *ServerBuilder {
	b.version = version
	return b
}

// WithLogger sets the logger every component derives its own from
func (b *ServerBuilder) WithLogger(logger *logging.Logger) *ServerBuilder {
	b.logger = logger
	return b
}

// WithConfig sets the environment configuration
func (b *ServerBuilder) WithConfig(cfg *config.Config) *ServerBuilder {
	b.cfg = cfg
	return b
}

// WithBackend replaces the Dataverse Web API backend
func (b *ServerBuilder) WithBackend(backend domain.MetadataBackend) *ServerBuilder {
	b.backend = backend
	return b
}

// WithClock sets the clock used for readiness polling and timestamps
func (b *ServerBuilder) WithClock(clock domain.Clock) *ServerBuilder {
	b.clock = clock
	return b
}

// WithPollInterval sets the readiness poll interval
func (b *ServerBuilder) WithPollInterval(d time.Duration) *ServerBuilder {
	b.pollInterval = d
	return b
}

// WithStdioOptions adds options applied to the stdio server
func (b *ServerBuilder) WithStdioOptions(opts ...stdio.StdioOption) *ServerBuilder {
	b.stdioOpts = append(b.stdioOpts, opts...)
	return b
}

// Server is a fully wired server.
type Server struct {
	Registry   *environment.Registry
	Manager    *connection.Manager
	Dispatcher *tools.Dispatcher
	Service    *usecases.ServerService
	Stdio      *stdio.StdioServer

	logger *logging.Logger
}

// Build wires the registry, connection manager, dispatcher and stdio loop.
// Configuration problems are logged and never stop the build.
func (b *ServerBuilder) Build() *Server {
	cfg := b.cfg
	if cfg == nil {
		cfg = &config.Config{}
	}
	for _, problem := range multierr.Errors(cfg.Validate()) {
		b.logger.Warn("Configuration problem", logging.Fields{"problem": problem.Error()})
	}

	backend := b.backend
	if backend == nil {
		backend = dataverse.NewBackend(dataverse.WithLogger(b.logger.Named("dataverse")))
	}

	registry := environment.NewRegistry(cfg.DomainEnvironments(), cfg.CurrentEnvironment)
	manager := connection.NewManager(registry, backend,
		connection.WithClock(b.clock),
		connection.WithLogger(b.logger.Named("connection")),
		connection.WithPollInterval(b.pollInterval),
	)
	dispatcher := tools.NewDispatcher(manager,
		tools.WithClock(b.clock),
		tools.WithLogger(b.logger.Named("tools")),
	)
	service := usecases.NewServerService(usecases.ServerConfig{
		Name:       b.name,
		Version:    b.version,
		Dispatcher: dispatcher,
	})

	opts := append([]stdio.StdioOption{stdio.WithLogger(b.logger.Named("stdio"))}, b.stdioOpts...)

	return &Server{
		Registry:   registry,
		Manager:    manager,
		Dispatcher: dispatcher,
		Service:    service,
		Stdio:      stdio.NewStdioServer(service, opts...),
		logger:     b.logger,
	}
}

// StartupCheck reports the configured environments and tests the current
// one within timeout. Failures are logged as warnings only.
func (s *Server) StartupCheck(ctx context.Context, timeout time.Duration) connection.TestResult {
	names := s.Registry.Names()
	if len(names) == 0 {
		s.logger.Warn("No Dataverse environments configured")
		return connection.TestResult{Success: false, Message: "No environments configured"}
	}

	current, display := s.Registry.Current()
	s.logger.Info("Dataverse environments configured", logging.Fields{
		"environments": names,
		"current":      current,
		"display_name": display,
	})

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result := s.Manager.TestConnection(ctx)
	if result.Success {
		s.logger.Info("Dataverse connection verified", logging.Fields{
			"organization": result.OrganizationName,
			"version":      result.Version,
		})
	} else {
		s.logger.Warn("Dataverse connection check failed", logging.Fields{"error": result.Message})
	}
	return result
}

// ServeStdio runs the protocol loop on the process streams.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Stdio.ServeStdio(ctx)
}

// Close releases the held Dataverse session.
func (s *Server) Close() {
	s.Manager.Dispose()
}
