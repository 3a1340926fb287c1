package tools

import (
	"time"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
)

// ErrorResult is returned by any tool whose operation failed.
type ErrorResult struct {
	Error string `json:"error"`
}

// EnvironmentInfoResult is the result of get_environment_info.
type EnvironmentInfoResult struct {
	CurrentEnvironment string    `json:"currentEnvironment"`
	DisplayName        string    `json:"displayName"`
	ConnectionStatus   string    `json:"connectionStatus"`
	ConnectionMessage  string    `json:"connectionMessage"`
	OrganizationName   string    `json:"organizationName,omitempty"`
	DataverseVersion   string    `json:"dataverseVersion,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Connection statuses reported by get_environment_info.
const (
	StatusConnected = "Connected"
	StatusFailed    = "Failed"
)

// EnvironmentSummary is one entry of list_environments.
type EnvironmentSummary struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	IsCurrent   bool   `json:"isCurrent"`
}

// ListEnvironmentsResult is the result of list_environments.
type ListEnvironmentsResult struct {
	CurrentEnvironment    string               `json:"currentEnvironment"`
	AvailableEnvironments []EnvironmentSummary `json:"availableEnvironments"`
}

// SetEnvironmentResult is the result of set_environment. Error is set when
// the named environment is not configured.
type SetEnvironmentResult struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	NewEnvironment string    `json:"newEnvironment,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// EntitySummary is one entry of list_entities.
type EntitySummary struct {
	LogicalName           string `json:"logicalName"`
	DisplayName           string `json:"displayName"`
	DisplayCollectionName string `json:"displayCollectionName"`
	Description           string `json:"description,omitempty"`
	EntitySetName         string `json:"entitySetName"`
	PrimaryIDAttribute    string `json:"primaryIdAttribute"`
	PrimaryNameAttribute  string `json:"primaryNameAttribute,omitempty"`
	IsCustomEntity        bool   `json:"isCustomEntity"`
	IsActivity            bool   `json:"isActivity"`
	ObjectTypeCode        *int   `json:"objectTypeCode,omitempty"`
}

// ListEntitiesResult is the result of list_entities.
type ListEntitiesResult struct {
	TotalCount int             `json:"totalCount"`
	CustomOnly bool            `json:"customOnly"`
	Entities   []EntitySummary `json:"entities"`
}

// EntityDetailsResult is the result of get_entity_details.
type EntityDetailsResult struct {
	EntityMetadata *domain.EntityMetadata        `json:"entityMetadata"`
	Relationships  []domain.RelationshipMetadata `json:"relationships,omitempty"`
	RetrievedAt    time.Time                     `json:"retrievedAt"`
}

// AttributeSummary is one entry of list_entity_attributes.
type AttributeSummary struct {
	LogicalName          string `json:"logicalName"`
	DisplayName          string `json:"displayName"`
	Description          string `json:"description,omitempty"`
	AttributeType        string `json:"attributeType"`
	IsRequired           bool   `json:"isRequired"`
	IsPrimaryID          bool   `json:"isPrimaryId"`
	IsPrimaryName        bool   `json:"isPrimaryName"`
	IsCustomAttribute    bool   `json:"isCustomAttribute"`
	CanRead              bool   `json:"canRead"`
	CanUpdate            bool   `json:"canUpdate"`
	MaxLength            *int   `json:"maxLength,omitempty"`
	LookupTargetEntity   string `json:"lookupTargetEntity,omitempty"`
	OptionSetValuesCount *int   `json:"optionSetValuesCount,omitempty"`
}

// ListAttributesResult is the result of list_entity_attributes.
type ListAttributesResult struct {
	EntityLogicalName string             `json:"entityLogicalName"`
	TotalCount        int                `json:"totalCount"`
	CustomOnly        bool               `json:"customOnly"`
	Attributes        []AttributeSummary `json:"attributes"`
}

func summarizeEntity(e domain.EntityMetadata) EntitySummary {
	return EntitySummary{
		LogicalName:           e.LogicalName,
		DisplayName:           e.DisplayName,
		DisplayCollectionName: e.DisplayCollectionName,
		Description:           e.Description,
		EntitySetName:         e.EntitySetName,
		PrimaryIDAttribute:    e.PrimaryIDAttribute,
		PrimaryNameAttribute:  e.PrimaryNameAttribute,
		IsCustomEntity:        e.IsCustomEntity,
		IsActivity:            e.IsActivity,
		ObjectTypeCode:        e.ObjectTypeCode,
	}
}

func summarizeAttribute(a domain.AttributeMetadata) AttributeSummary {
	s := AttributeSummary{
		LogicalName:        a.LogicalName,
		DisplayName:        a.DisplayName,
		Description:        a.Description,
		AttributeType:      a.AttributeType,
		IsRequired:         a.IsRequired,
		IsPrimaryID:        a.IsPrimaryID,
		IsPrimaryName:      a.IsPrimaryName,
		IsCustomAttribute:  a.IsCustomAttribute,
		CanRead:            a.CanRead,
		CanUpdate:          a.CanUpdate,
		MaxLength:          a.MaxLength(),
		LookupTargetEntity: a.LookupTargetEntity(),
	}
	if _, ok := a.Detail.(domain.PicklistDetail); ok {
		count := len(a.OptionSetValues())
		s.OptionSetValuesCount = &count
	}
	return s
}
