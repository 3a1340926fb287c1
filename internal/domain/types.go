// Package domain defines the core entities of the Dataverse metadata server.
package domain

import (
	"time"
)

// AuthKind identifies the authentication flavour configured for an environment.
type AuthKind string

// Supported authentication kinds.
const (
	AuthServicePrincipal AuthKind = "ServicePrincipal"
	AuthInteractive      AuthKind = "Interactive"
)

// AuthSpec is the authentication configuration of an environment. It is a
// closed union: ServicePrincipalAuth, InteractiveAuth or UnsupportedAuth.
type AuthSpec interface {
	Kind() AuthKind
	isAuthSpec()
}

// ServicePrincipalAuth authenticates with a client id and secret.
type ServicePrincipalAuth struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Kind returns AuthServicePrincipal.
func (ServicePrincipalAuth) Kind() AuthKind { return AuthServicePrincipal }
func (ServicePrincipalAuth) isAuthSpec()    {}

// InteractiveAuth authenticates a signed-in user. Every field is optional.
type InteractiveAuth struct {
	TenantID    string
	ClientID    string
	RedirectURI string
}

// Kind returns AuthInteractive.
func (InteractiveAuth) Kind() AuthKind { return AuthInteractive }
func (InteractiveAuth) isAuthSpec()    {}

// UnsupportedAuth keeps an auth type the server does not understand so the
// failure surfaces when a connection is attempted rather than at load time.
type UnsupportedAuth struct {
	Type string
}

// Kind returns the raw configured type.
func (u UnsupportedAuth) Kind() AuthKind { return AuthKind(u.Type) }
func (UnsupportedAuth) isAuthSpec()      {}

// Environment is one named backend target.
type Environment struct {
	Name             string
	DisplayName      string
	OrganizationURL  string
	Auth             AuthSpec
	TimeoutSeconds   int
	MaxRetryAttempts int
}

// Timeout returns the connect timeout as a duration.
func (e Environment) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// ConnectionParams is everything a MetadataBackend needs to open a session.
type ConnectionParams struct {
	EnvironmentName string
	OrganizationURL string
	Auth            AuthSpec
	Timeout         time.Duration
	MaxRetries      int
}

// NewConnectionParams validates the environment's auth block and builds the
// parameters for a backend session.
func NewConnectionParams(env Environment) (ConnectionParams, error) {
	switch auth := env.Auth.(type) {
	case ServicePrincipalAuth:
		if auth.ClientSecret == "" {
			return ConnectionParams{}, NewInvalidAuthConfigError("ClientSecret is required for ServicePrincipal authentication")
		}
		if auth.ClientID == "" {
			return ConnectionParams{}, NewInvalidAuthConfigError("ClientId is required for ServicePrincipal authentication")
		}
	case InteractiveAuth:
	case UnsupportedAuth:
		return ConnectionParams{}, NewInvalidAuthConfigError("Unsupported authentication type: " + auth.Type)
	case nil:
		return ConnectionParams{}, NewInvalidAuthConfigError("authentication is not configured")
	default:
		return ConnectionParams{}, NewInvalidAuthConfigError("Unsupported authentication type: " + string(auth.Kind()))
	}

	return ConnectionParams{
		EnvironmentName: env.Name,
		OrganizationURL: env.OrganizationURL,
		Auth:            env.Auth,
		Timeout:         env.Timeout(),
		MaxRetries:      env.MaxRetryAttempts,
	}, nil
}

// ConnectionState is the observable state of a connection attempt.
type ConnectionState string

// Connection states. Failed is terminal for an attempt.
const (
	StateDisconnected ConnectionState = "Disconnected"
	StateConnecting   ConnectionState = "Connecting"
	StateReady        ConnectionState = "Ready"
	StateFailed       ConnectionState = "Failed"
)

// Tool represents a tool that can be called by clients.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is the JSON-Schema-like argument shape of a tool.
type InputSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// TextContent is a single text item of a tool call result.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolCallResult wraps every successful tool invocation.
type ToolCallResult struct {
	Content []TextContent `json:"content"`
}

// NewTextResult builds a tool call envelope carrying a single text item.
func NewTextResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []TextContent{{Type: "text", Text: text}},
	}
}
