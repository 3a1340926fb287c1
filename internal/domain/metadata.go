package domain

import "encoding/json"

// EntityMetadata describes a Dataverse table.
type EntityMetadata struct {
	LogicalName           string             `json:"logicalName"`
	DisplayName           string             `json:"displayName"`
	DisplayCollectionName string             `json:"displayCollectionName"`
	Description           string             `json:"description,omitempty"`
	EntitySetName         string             `json:"entitySetName"`
	PrimaryIDAttribute    string             `json:"primaryIdAttribute"`
	PrimaryNameAttribute  string             `json:"primaryNameAttribute,omitempty"`
	IsCustomEntity        bool               `json:"isCustomEntity"`
	IsManaged             bool               `json:"isManaged"`
	ObjectTypeCode        *int               `json:"objectTypeCode,omitempty"`
	SchemaName            string             `json:"schemaName"`
	IsActivity            bool               `json:"isActivity"`
	IsIntersect           bool               `json:"isIntersect"`
	Capabilities          EntityCapabilities `json:"capabilities"`
}

// EntityCapabilities summarises what can be done with an entity.
type EntityCapabilities struct {
	CanCreate                        bool `json:"canCreate"`
	CanRead                          bool `json:"canRead"`
	CanUpdate                        bool `json:"canUpdate"`
	CanDelete                        bool `json:"canDelete"`
	CanBeInBusinessProcess           bool `json:"canBeInBusinessProcess"`
	CanBeRelatedEntityInRelationship bool `json:"canBeRelatedEntityInRelationship"`
	CanBePrimaryEntityInRelationship bool `json:"canBePrimaryEntityInRelationship"`
}

// AttributeMetadata describes a column of a Dataverse table. Type specific
// data lives in Detail.
type AttributeMetadata struct {
	LogicalName       string
	DisplayName       string
	Description       string
	SchemaName        string
	AttributeType     string
	IsPrimaryID       bool
	IsPrimaryName     bool
	IsCustomAttribute bool
	IsManaged         bool
	IsRequired        bool
	CanRead           bool
	CanUpdate         bool
	Detail            AttributeDetail
}

// AttributeDetail is the type specific part of an attribute: one of
// StringDetail, IntegerDetail, DecimalDetail, MoneyDetail, DateTimeDetail,
// LookupDetail, PicklistDetail or OtherDetail.
type AttributeDetail interface {
	isAttributeDetail()
}

// StringDetail holds string column settings.
type StringDetail struct {
	MaxLength *int
	Format    string
}

// IntegerDetail holds whole number column settings.
type IntegerDetail struct {
	MinValue *int64
	MaxValue *int64
	Format   string
}

// DecimalDetail holds decimal column settings.
type DecimalDetail struct {
	MinValue  *float64
	MaxValue  *float64
	Precision *int
}

// MoneyDetail holds currency column settings.
type MoneyDetail struct {
	MinValue        *float64
	MaxValue        *float64
	Precision       *int
	PrecisionSource *int
}

// DateTimeDetail holds date and time column settings.
type DateTimeDetail struct {
	Format string
}

// LookupDetail holds the tables a lookup column can point to.
type LookupDetail struct {
	Targets []string
}

// PicklistDetail holds the option set of a choice column.
type PicklistDetail struct {
	IsGlobal      bool
	OptionSetName string
	Options       []OptionMetadata
}

// OtherDetail is used for attribute types without extra settings.
type OtherDetail struct{}

func (StringDetail) isAttributeDetail()   {}
func (IntegerDetail) isAttributeDetail()  {}
func (DecimalDetail) isAttributeDetail()  {}
func (MoneyDetail) isAttributeDetail()    {}
func (DateTimeDetail) isAttributeDetail() {}
func (LookupDetail) isAttributeDetail()   {}
func (PicklistDetail) isAttributeDetail() {}
func (OtherDetail) isAttributeDetail()    {}

// OptionMetadata is a single choice of an option set.
type OptionMetadata struct {
	Value       int    `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	IsDefault   bool   `json:"isDefault"`
}

// MaxLength returns the maximum length of string attributes.
func (a AttributeMetadata) MaxLength() *int {
	if d, ok := a.Detail.(StringDetail); ok {
		return d.MaxLength
	}
	return nil
}

// LookupTargetEntity returns the first lookup target, if any.
func (a AttributeMetadata) LookupTargetEntity() string {
	if d, ok := a.Detail.(LookupDetail); ok && len(d.Targets) > 0 {
		return d.Targets[0]
	}
	return ""
}

// OptionSetValues returns the options of choice attributes.
func (a AttributeMetadata) OptionSetValues() []OptionMetadata {
	if d, ok := a.Detail.(PicklistDetail); ok {
		return d.Options
	}
	return nil
}

type attributeJSON struct {
	LogicalName         string           `json:"logicalName"`
	DisplayName         string           `json:"displayName"`
	Description         string           `json:"description,omitempty"`
	SchemaName          string           `json:"schemaName"`
	AttributeType       string           `json:"attributeType"`
	IsPrimaryID         bool             `json:"isPrimaryId"`
	IsPrimaryName       bool             `json:"isPrimaryName"`
	IsCustomAttribute   bool             `json:"isCustomAttribute"`
	IsManaged           bool             `json:"isManaged"`
	IsRequired          bool             `json:"isRequired"`
	CanRead             bool             `json:"canRead"`
	CanUpdate           bool             `json:"canUpdate"`
	MaxLength           *int             `json:"maxLength,omitempty"`
	MinValue            interface{}      `json:"minValue,omitempty"`
	MaxValue            interface{}      `json:"maxValue,omitempty"`
	Precision           *int             `json:"precision,omitempty"`
	PrecisionSource     *int             `json:"precisionSource,omitempty"`
	Format              string           `json:"format,omitempty"`
	LookupTargetEntity  string           `json:"lookupTargetEntity,omitempty"`
	OptionSetValues     []OptionMetadata `json:"optionSetValues,omitempty"`
	IsGlobalOptionSet   *bool            `json:"isGlobalOptionSet,omitempty"`
	GlobalOptionSetName string           `json:"globalOptionSetName,omitempty"`
}

// MarshalJSON flattens the detail variant into a single object.
func (a AttributeMetadata) MarshalJSON() ([]byte, error) {
	out := attributeJSON{
		LogicalName:       a.LogicalName,
		DisplayName:       a.DisplayName,
		Description:       a.Description,
		SchemaName:        a.SchemaName,
		AttributeType:     a.AttributeType,
		IsPrimaryID:       a.IsPrimaryID,
		IsPrimaryName:     a.IsPrimaryName,
		IsCustomAttribute: a.IsCustomAttribute,
		IsManaged:         a.IsManaged,
		IsRequired:        a.IsRequired,
		CanRead:           a.CanRead,
		CanUpdate:         a.CanUpdate,
	}

	switch d := a.Detail.(type) {
	case StringDetail:
		out.MaxLength = d.MaxLength
		out.Format = d.Format
	case IntegerDetail:
		if d.MinValue != nil {
			out.MinValue = *d.MinValue
		}
		if d.MaxValue != nil {
			out.MaxValue = *d.MaxValue
		}
		out.Format = d.Format
	case DecimalDetail:
		if d.MinValue != nil {
			out.MinValue = *d.MinValue
		}
		if d.MaxValue != nil {
			out.MaxValue = *d.MaxValue
		}
		out.Precision = d.Precision
	case MoneyDetail:
		if d.MinValue != nil {
			out.MinValue = *d.MinValue
		}
		if d.MaxValue != nil {
			out.MaxValue = *d.MaxValue
		}
		out.Precision = d.Precision
		out.PrecisionSource = d.PrecisionSource
	case DateTimeDetail:
		out.Format = d.Format
	case LookupDetail:
		out.LookupTargetEntity = a.LookupTargetEntity()
	case PicklistDetail:
		isGlobal := d.IsGlobal
		out.IsGlobalOptionSet = &isGlobal
		out.GlobalOptionSetName = d.OptionSetName
		out.OptionSetValues = d.Options
	}

	return json.Marshal(out)
}

// Relationship types
const (
	RelationshipOneToMany  = "OneToMany"
	RelationshipManyToOne  = "ManyToOne"
	RelationshipManyToMany = "ManyToMany"
)

// RelationshipMetadata describes a relationship between two tables.
type RelationshipMetadata struct {
	SchemaName                              string                `json:"schemaName"`
	RelationshipType                        string                `json:"relationshipType"`
	PrimaryEntity                           string                `json:"primaryEntity"`
	RelatedEntity                           string                `json:"relatedEntity"`
	IsCustomRelationship                    bool                  `json:"isCustomRelationship"`
	IsManaged                               bool                  `json:"isManaged"`
	LookupAttributeName                     string                `json:"lookupAttributeName,omitempty"`
	IntersectEntityName                     string                `json:"intersectEntityName,omitempty"`
	CascadeConfiguration                    *CascadeConfiguration `json:"cascadeConfiguration,omitempty"`
	ReferencedEntityNavigationPropertyName  string                `json:"referencedEntityNavigationPropertyName,omitempty"`
	ReferencingEntityNavigationPropertyName string                `json:"referencingEntityNavigationPropertyName,omitempty"`
}

// CascadeConfiguration is the cascade behaviour of a one-to-many relationship.
type CascadeConfiguration struct {
	Delete   string `json:"delete"`
	Assign   string `json:"assign"`
	Share    string `json:"share"`
	Unshare  string `json:"unshare"`
	Reparent string `json:"reparent"`
	Rollup   string `json:"rollup"`
}
