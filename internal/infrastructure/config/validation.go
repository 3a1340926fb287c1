package config

import (
	"fmt"
	"net/url"

	"go.uber.org/multierr"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
)

// ValidationError represents a validation problem with context
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// Validate reports every problem found in the configuration. Problems are
// advisory: the server still starts and connection attempts surface them
// again as typed errors.
func (c *Config) Validate() error {
	var err error

	if len(c.Environments) == 0 {
		return ValidationError{Field: "environments", Message: "no environments configured"}
	}

	if c.CurrentEnvironment == "" {
		err = multierr.Append(err, ValidationError{Field: "currentEnvironment", Message: "is required"})
	} else if _, ok := c.Environments[c.CurrentEnvironment]; !ok {
		err = multierr.Append(err, ValidationError{
			Field:   "currentEnvironment",
			Message: fmt.Sprintf("environment '%s' is not configured", c.CurrentEnvironment),
		})
	}

	for _, name := range c.EnvironmentNames() {
		err = multierr.Append(err, validateEnvironment(c.Environments[name].Environment(name)))
	}

	return err
}

func validateEnvironment(env domain.Environment) error {
	var err error
	field := func(name string) string { return "environments." + env.Name + "." + name }

	if env.DisplayName == "" {
		err = multierr.Append(err, ValidationError{Field: field("displayName"), Message: "is required"})
	}
	if env.OrganizationURL == "" {
		err = multierr.Append(err, ValidationError{Field: field("organizationUrl"), Message: "is required"})
	} else if u, parseErr := url.Parse(env.OrganizationURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		err = multierr.Append(err, ValidationError{Field: field("organizationUrl"), Message: "must be an absolute URL"})
	}
	if env.TimeoutSeconds <= 0 {
		err = multierr.Append(err, ValidationError{Field: field("timeoutSeconds"), Message: "must be greater than zero"})
	}
	if env.MaxRetryAttempts < 0 {
		err = multierr.Append(err, ValidationError{Field: field("maxRetryAttempts"), Message: "must not be negative"})
	}
	if _, authErr := domain.NewConnectionParams(env); authErr != nil {
		err = multierr.Append(err, ValidationError{Field: field("authentication"), Message: authErr.Error()})
	}

	return err
}
