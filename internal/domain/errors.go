package domain

import (
	"errors"
	"fmt"
	"time"
)

// Common domain errors
var (
	// ErrCancelled is returned when the caller's context ends while a
	// connection attempt is in progress.
	ErrCancelled = errors.New("connection attempt cancelled")

	// ErrNoConnection is reported when a session was expected but none is held.
	ErrNoConnection = errors.New("no active connection")
)

// EnvironmentNotFoundError indicates that a named environment is not configured.
type EnvironmentNotFoundError struct {
	Name string
}

// Error returns the error message.
func (e *EnvironmentNotFoundError) Error() string {
	return fmt.Sprintf("Environment '%s' not found in configuration", e.Name)
}

// NewEnvironmentNotFoundError creates a new EnvironmentNotFoundError.
func NewEnvironmentNotFoundError(name string) *EnvironmentNotFoundError {
	return &EnvironmentNotFoundError{Name: name}
}

// InvalidAuthConfigError indicates that an environment's authentication block
// cannot be turned into connection parameters.
type InvalidAuthConfigError struct {
	Reason string
}

// Error returns the error message.
func (e *InvalidAuthConfigError) Error() string {
	return e.Reason
}

// NewInvalidAuthConfigError creates a new InvalidAuthConfigError.
func NewInvalidAuthConfigError(reason string) *InvalidAuthConfigError {
	return &InvalidAuthConfigError{Reason: reason}
}

// ConnectTimeoutError indicates that a session did not become ready in time.
type ConnectTimeoutError struct {
	Timeout   time.Duration
	LastError string
}

// Error returns the error message.
func (e *ConnectTimeoutError) Error() string {
	lastErr := e.LastError
	if lastErr == "" {
		lastErr = "none"
	}
	return fmt.Sprintf("Failed to connect to Dataverse within timeout period (%s). Error: %s", e.Timeout, lastErr)
}

// MissingArgumentError indicates that a required tool argument was absent.
type MissingArgumentError struct {
	Name string
}

// Error returns the error message.
func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing required argument: %s", e.Name)
}

// NewMissingArgumentError creates a new MissingArgumentError.
func NewMissingArgumentError(name string) *MissingArgumentError {
	return &MissingArgumentError{Name: name}
}

// ToolNotFoundError indicates that a requested tool was not found.
type ToolNotFoundError struct {
	Name string
}

// Error returns the error message.
func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.Name)
}

// NewToolNotFoundError creates a new ToolNotFoundError.
func NewToolNotFoundError(name string) *ToolNotFoundError {
	return &ToolNotFoundError{Name: name}
}

// EntityNotFoundError indicates that the backend has no entity with the given
// logical name.
type EntityNotFoundError struct {
	LogicalName string
}

// Error returns the error message.
func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("Entity '%s' not found", e.LogicalName)
}

// NewEntityNotFoundError creates a new EntityNotFoundError.
func NewEntityNotFoundError(logicalName string) *EntityNotFoundError {
	return &EntityNotFoundError{LogicalName: logicalName}
}

// IsEnvironmentNotFound reports whether err is, or wraps, an EnvironmentNotFoundError.
func IsEnvironmentNotFound(err error) bool {
	var target *EnvironmentNotFoundError
	return errors.As(err, &target)
}

// IsEntityNotFound reports whether err is, or wraps, an EntityNotFoundError.
func IsEntityNotFound(err error) bool {
	var target *EntityNotFoundError
	return errors.As(err, &target)
}
