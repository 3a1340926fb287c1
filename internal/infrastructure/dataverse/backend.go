// Package dataverse implements the metadata backend over the Dataverse Web
// API.
package dataverse

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/logging"
)

// Defaults for the Microsoft identity platform.
const (
	DefaultAuthorityHost = "https://login.microsoftonline.com"
	DefaultTenant        = "organizations"
	// DefaultPublicClientID is the well known client id Microsoft publishes
	// for development tools connecting to Dataverse.
	DefaultPublicClientID = "51f81489-12ee-4a9e-aaae-a2591f45987d"

	apiPath = "/api/data/v9.2/"
)

// Backend opens Web API sessions.
type Backend struct {
	logger        *logging.Logger
	authorityHost string
	retryWaitMin  time.Duration
	retryWaitMax  time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithAuthorityHost overrides the identity platform host.
func WithAuthorityHost(host string) Option {
	return func(b *Backend) {
		b.authorityHost = strings.TrimRight(host, "/")
	}
}

// WithRetryWait sets the bounds of the wait between retried requests.
func WithRetryWait(min, max time.Duration) Option {
	return func(b *Backend) {
		b.retryWaitMin = min
		b.retryWaitMax = max
	}
}

// NewBackend creates a backend.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		logger:        logging.NewNop(),
		authorityHost: DefaultAuthorityHost,
		retryWaitMin:  time.Second,
		retryWaitMax:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect implements domain.MetadataBackend. It returns at once; the session
// authenticates and identifies the organization in the background and
// reports readiness through IsReady.
func (b *Backend) Connect(ctx context.Context, params domain.ConnectionParams) (domain.Session, error) {
	orgURL := strings.TrimRight(params.OrganizationURL, "/")
	if orgURL == "" {
		return nil, domain.NewInvalidAuthConfigError("organization URL is not configured")
	}

	id := uuid.NewString()
	log := b.logger.With(logging.Fields{"environment": params.EnvironmentName, "session_id": id})

	sessionCtx, cancel := context.WithCancel(context.Background())
	base := b.httpClient(params, log)
	sessionCtx = context.WithValue(sessionCtx, oauth2.HTTPClient, base)

	source, err := b.tokenSource(sessionCtx, params, orgURL, log)
	if err != nil {
		cancel()
		return nil, err
	}
	tokens := oauth2.ReuseTokenSource(nil, source)

	s := &Session{
		id:     id,
		params: params,
		logger: log,
		ctx:    sessionCtx,
		cancel: cancel,
		tokens: tokens,
		api: &webAPI{
			baseURL: orgURL + apiPath,
			client:  oauth2.NewClient(sessionCtx, tokens),
		},
	}

	log.Info("Opening Dataverse session", logging.Fields{"organization_url": orgURL})
	go s.establish()
	return s, nil
}

// httpClient builds the retrying client every request of a session goes
// through, token requests included.
func (b *Backend) httpClient(params domain.ConnectionParams, log *logging.Logger) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = params.MaxRetries
	rc.RetryWaitMin = b.retryWaitMin
	rc.RetryWaitMax = b.retryWaitMax
	rc.Logger = retryLogger{log.Named("http")}
	if params.Timeout > 0 {
		rc.HTTPClient.Timeout = params.Timeout
	}
	return rc.StandardClient()
}

// retryLogger adapts Logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger *logging.Logger
}

func (l retryLogger) fields(keysAndValues []interface{}) logging.Fields {
	fields := logging.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, l.fields(keysAndValues))
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, l.fields(keysAndValues))
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, l.fields(keysAndValues))
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, l.fields(keysAndValues))
}
