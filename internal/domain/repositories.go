package domain

import "context"

// MetadataBackend opens sessions against the remote platform.
type MetadataBackend interface {
	// Connect starts opening a session. It may return before the session is
	// ready; callers poll Session.IsReady.
	Connect(ctx context.Context, params ConnectionParams) (Session, error)
}

// Session is a live handle to one environment of the remote platform.
type Session interface {
	// ID uniquely identifies the session for the lifetime of the process.
	ID() string

	// IsReady reports whether the session can serve requests.
	IsReady() bool

	// LastError returns the most recent connection error, if any.
	LastError() string

	// OrganizationName returns the friendly name of the connected organization.
	OrganizationName() string

	// Version returns the platform version of the connected organization.
	Version() string

	// Close releases the session. It is safe to call more than once.
	Close() error

	MetadataRepository
}

// MetadataRepository defines the metadata retrieval calls served by a session.
type MetadataRepository interface {
	// ListEntities returns every entity, optionally custom ones only.
	ListEntities(ctx context.Context, customOnly bool) ([]EntityMetadata, error)

	// GetEntity returns a single entity or an EntityNotFoundError.
	GetEntity(ctx context.Context, logicalName string) (*EntityMetadata, error)

	// ListAttributes returns the attributes of an entity, optionally custom ones only.
	ListAttributes(ctx context.Context, entityLogicalName string, customOnly bool) ([]AttributeMetadata, error)

	// ListRelationships returns the relationships an entity takes part in.
	ListRelationships(ctx context.Context, entityLogicalName string) ([]RelationshipMetadata, error)
}
