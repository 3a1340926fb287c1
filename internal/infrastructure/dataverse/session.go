package dataverse

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/logging"
)

// Session is an authenticated Web API session with one organization.
type Session struct {
	id     string
	params domain.ConnectionParams
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	tokens oauth2.TokenSource
	api    *webAPI

	mu      sync.RWMutex
	ready   bool
	closed  bool
	lastErr string
	orgName string
	version string
}

// establish signs in and identifies the organization. The session becomes
// ready once the version and caller identity are known.
func (s *Session) establish() {
	if _, err := s.tokens.Token(); err != nil {
		s.fail(errors.Wrap(err, "acquiring access token"))
		return
	}

	var version struct {
		Version string `json:"Version"`
	}
	if err := s.api.get(s.ctx, "RetrieveVersion()", nil, &version); err != nil {
		s.fail(errors.Wrap(err, "retrieving version"))
		return
	}

	var who struct {
		OrganizationID string `json:"OrganizationId"`
	}
	if err := s.api.get(s.ctx, "WhoAmI", nil, &who); err != nil {
		s.fail(errors.Wrap(err, "identifying caller"))
		return
	}

	var org struct {
		FriendlyName string `json:"friendlyname"`
	}
	if who.OrganizationID != "" {
		err := s.api.get(s.ctx, "organizations("+who.OrganizationID+")", query{{"$select", "friendlyname"}}, &org)
		if err != nil {
			s.logger.Warn("Could not read organization name", logging.Fields{"error": err.Error()})
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ready = true
	s.lastErr = ""
	s.version = version.Version
	s.orgName = org.FriendlyName
	s.logger.Info("Dataverse session ready", logging.Fields{
		"organization": s.orgName,
		"version":      s.version,
	})
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.lastErr = errors.Cause(err).Error()
	s.logger.Error("Dataverse session failed", logging.Fields{"error": err.Error()})
}

// ID implements domain.Session.
func (s *Session) ID() string {
	return s.id
}

// IsReady implements domain.Session.
func (s *Session) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// LastError implements domain.Session.
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// OrganizationName implements domain.Session.
func (s *Session) OrganizationName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orgName
}

// Version implements domain.Session.
func (s *Session) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Close stops any sign-in in progress and marks the session unusable.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.ready = false
	s.cancel()
	s.logger.Debug("Dataverse session closed")
	return nil
}

func (s *Session) usable() error {
	if !s.IsReady() {
		return domain.ErrNoConnection
	}
	return nil
}

// ListEntities implements domain.MetadataRepository.
func (s *Session) ListEntities(ctx context.Context, customOnly bool) ([]domain.EntityMetadata, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	q := query{{"$select", entitySelect}}
	if customOnly {
		q = append(q, [2]string{"$filter", "IsCustomEntity eq true"})
	}
	dtos, err := list[entityDTO](ctx, s.api, "EntityDefinitions", q)
	if err != nil {
		return nil, errors.Wrap(err, "listing entities")
	}

	entities := make([]domain.EntityMetadata, 0, len(dtos))
	for _, dto := range dtos {
		entities = append(entities, dto.toDomain())
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].DisplayName < entities[j].DisplayName
	})
	return entities, nil
}

// GetEntity implements domain.MetadataRepository.
func (s *Session) GetEntity(ctx context.Context, logicalName string) (*domain.EntityMetadata, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	var dto entityDTO
	if err := s.api.get(ctx, entityPath(logicalName), query{{"$select", entitySelect}}, &dto); err != nil {
		if isNotFound(err) {
			return nil, domain.NewEntityNotFoundError(logicalName)
		}
		return nil, errors.Wrapf(err, "retrieving entity %s", logicalName)
	}
	entity := dto.toDomain()
	return &entity, nil
}

// ListAttributes implements domain.MetadataRepository. Option sets are read
// with a second, picklist only request and merged in.
func (s *Session) ListAttributes(ctx context.Context, entityLogicalName string, customOnly bool) ([]domain.AttributeMetadata, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	path := entityPath(entityLogicalName) + "/Attributes"
	dtos, err := list[attributeDTO](ctx, s.api, path, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.NewEntityNotFoundError(entityLogicalName)
		}
		return nil, errors.Wrapf(err, "listing attributes of %s", entityLogicalName)
	}

	optionSets := map[string]*optionSetDTO{}
	picklists, err := list[attributeDTO](ctx, s.api, path+"/"+picklistTypeCast,
		query{{"$select", "LogicalName"}, {"$expand", "OptionSet"}})
	if err != nil {
		s.logger.Warn("Could not read option sets", logging.Fields{
			"entity": entityLogicalName,
			"error":  err.Error(),
		})
	}
	for i := range picklists {
		optionSets[picklists[i].LogicalName] = picklists[i].OptionSet
	}

	attributes := make([]domain.AttributeMetadata, 0, len(dtos))
	for _, dto := range dtos {
		if customOnly && !dto.IsCustomAttribute {
			continue
		}
		if set, ok := optionSets[dto.LogicalName]; ok && dto.OptionSet == nil {
			dto.OptionSet = set
		}
		attributes = append(attributes, dto.toDomain())
	}
	sort.SliceStable(attributes, func(i, j int) bool {
		return attributes[i].DisplayName < attributes[j].DisplayName
	})
	return attributes, nil
}

// ListRelationships implements domain.MetadataRepository.
func (s *Session) ListRelationships(ctx context.Context, entityLogicalName string) ([]domain.RelationshipMetadata, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	var dto relationshipsDTO
	q := query{
		{"$select", "LogicalName"},
		{"$expand", "OneToManyRelationships,ManyToOneRelationships,ManyToManyRelationships"},
	}
	if err := s.api.get(ctx, entityPath(entityLogicalName), q, &dto); err != nil {
		if isNotFound(err) {
			return nil, domain.NewEntityNotFoundError(entityLogicalName)
		}
		return nil, errors.Wrapf(err, "listing relationships of %s", entityLogicalName)
	}

	out := make([]domain.RelationshipMetadata, 0, len(dto.OneToMany)+len(dto.ManyToOne)+len(dto.ManyToMany))
	for _, r := range dto.OneToMany {
		out = append(out, r.toDomain(domain.RelationshipOneToMany))
	}
	for _, r := range dto.ManyToOne {
		out = append(out, r.toDomain(domain.RelationshipManyToOne))
	}
	for _, r := range dto.ManyToMany {
		out = append(out, r.toDomain())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SchemaName < out[j].SchemaName
	})
	return out, nil
}
