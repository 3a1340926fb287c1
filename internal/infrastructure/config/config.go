// Package config loads the environment definitions and process settings of
// the server.
package config

import (
	"sort"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
)

// Defaults applied to environments that leave the setting out.
const (
	DefaultTimeoutSeconds   = 30
	DefaultMaxRetryAttempts = 3
	DefaultRedirectURI      = "http://localhost"
)

// File is the on-disk document. JSON keys match case-insensitively, so
// appsettings style PascalCase documents load as well; YAML documents use
// camelCase keys but may name the section either way.
type File struct {
	Dataverse   *Config `yaml:"dataverse" json:"dataverse"`
	AppSettings *Config `yaml:"Dataverse" json:"-"`
}

// Config is the Dataverse section of the configuration.
type Config struct {
	CurrentEnvironment string                       `yaml:"currentEnvironment" json:"currentEnvironment"`
	Environments       map[string]EnvironmentConfig `yaml:"environments" json:"environments"`
}

// EnvironmentConfig is a single configured environment.
type EnvironmentConfig struct {
	DisplayName      string     `yaml:"displayName" json:"displayName"`
	OrganizationURL  string     `yaml:"organizationUrl" json:"organizationUrl"`
	Authentication   AuthConfig `yaml:"authentication" json:"authentication"`
	TimeoutSeconds   *int       `yaml:"timeoutSeconds" json:"timeoutSeconds"`
	MaxRetryAttempts *int       `yaml:"maxRetryAttempts" json:"maxRetryAttempts"`
}

// AuthConfig is the authentication block of an environment.
type AuthConfig struct {
	AuthType     string  `yaml:"authType" json:"authType"`
	TenantID     string  `yaml:"tenantId" json:"tenantId"`
	ClientID     string  `yaml:"clientId" json:"clientId"`
	ClientSecret string  `yaml:"clientSecret" json:"clientSecret"`
	RedirectURI  *string `yaml:"redirectUri" json:"redirectUri"`
}

// section returns whichever Dataverse section the document carries.
func (f *File) section() *Config {
	switch {
	case f.Dataverse != nil:
		return f.Dataverse
	case f.AppSettings != nil:
		return f.AppSettings
	default:
		return &Config{}
	}
}

// Environment converts a configured environment into its domain form,
// applying defaults.
func (c EnvironmentConfig) Environment(name string) domain.Environment {
	timeout := DefaultTimeoutSeconds
	if c.TimeoutSeconds != nil {
		timeout = *c.TimeoutSeconds
	}
	retries := DefaultMaxRetryAttempts
	if c.MaxRetryAttempts != nil {
		retries = *c.MaxRetryAttempts
	}

	return domain.Environment{
		Name:             name,
		DisplayName:      c.DisplayName,
		OrganizationURL:  c.OrganizationURL,
		Auth:             c.Authentication.AuthSpec(),
		TimeoutSeconds:   timeout,
		MaxRetryAttempts: retries,
	}
}

// AuthSpec converts the auth block into the domain union.
func (a AuthConfig) AuthSpec() domain.AuthSpec {
	switch domain.AuthKind(a.AuthType) {
	case domain.AuthServicePrincipal:
		return domain.ServicePrincipalAuth{
			TenantID:     a.TenantID,
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
		}
	case domain.AuthInteractive:
		redirect := DefaultRedirectURI
		if a.RedirectURI != nil {
			redirect = *a.RedirectURI
		}
		return domain.InteractiveAuth{
			TenantID:    a.TenantID,
			ClientID:    a.ClientID,
			RedirectURI: redirect,
		}
	default:
		return domain.UnsupportedAuth{Type: a.AuthType}
	}
}

// DomainEnvironments returns every configured environment keyed by name.
func (c *Config) DomainEnvironments() map[string]domain.Environment {
	out := make(map[string]domain.Environment, len(c.Environments))
	for name, env := range c.Environments {
		out[name] = env.Environment(name)
	}
	return out
}

// EnvironmentNames returns the configured names in sorted order.
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
