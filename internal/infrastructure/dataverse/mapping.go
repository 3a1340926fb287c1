package dataverse

import (
	"encoding/json"
	"strings"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
)

const (
	odataTypePrefix  = "#Microsoft.Dynamics.CRM."
	requiredByApp    = "ApplicationRequired"
	picklistTypeCast = "Microsoft.Dynamics.CRM.PicklistAttributeMetadata"
)

type label struct {
	UserLocalizedLabel *struct {
		Label string `json:"Label"`
	} `json:"UserLocalizedLabel"`
}

func (l label) text() string {
	if l.UserLocalizedLabel == nil {
		return ""
	}
	return l.UserLocalizedLabel.Label
}

type managedBool struct {
	Value bool `json:"Value"`
}

type entityDTO struct {
	LogicalName                      string      `json:"LogicalName"`
	SchemaName                       string      `json:"SchemaName"`
	DisplayName                      label       `json:"DisplayName"`
	DisplayCollectionName            label       `json:"DisplayCollectionName"`
	Description                      label       `json:"Description"`
	EntitySetName                    string      `json:"EntitySetName"`
	PrimaryIDAttribute               string      `json:"PrimaryIdAttribute"`
	PrimaryNameAttribute             string      `json:"PrimaryNameAttribute"`
	IsCustomEntity                   bool        `json:"IsCustomEntity"`
	IsManaged                        bool        `json:"IsManaged"`
	ObjectTypeCode                   *int        `json:"ObjectTypeCode"`
	IsActivity                       bool        `json:"IsActivity"`
	IsIntersect                      bool        `json:"IsIntersect"`
	CanBeInManyToMany                managedBool `json:"CanBeInManyToMany"`
	CanBeRelatedEntityInRelationship managedBool `json:"CanBeRelatedEntityInRelationship"`
	CanBePrimaryEntityInRelationship managedBool `json:"CanBePrimaryEntityInRelationship"`
}

var entitySelect = strings.Join([]string{
	"LogicalName", "SchemaName", "DisplayName", "DisplayCollectionName", "Description",
	"EntitySetName", "PrimaryIdAttribute", "PrimaryNameAttribute", "IsCustomEntity",
	"IsManaged", "ObjectTypeCode", "IsActivity", "IsIntersect", "CanBeInManyToMany",
	"CanBeRelatedEntityInRelationship", "CanBePrimaryEntityInRelationship",
}, ",")

func (e entityDTO) toDomain() domain.EntityMetadata {
	return domain.EntityMetadata{
		LogicalName:           e.LogicalName,
		DisplayName:           e.DisplayName.text(),
		DisplayCollectionName: e.DisplayCollectionName.text(),
		Description:           e.Description.text(),
		EntitySetName:         e.EntitySetName,
		PrimaryIDAttribute:    e.PrimaryIDAttribute,
		PrimaryNameAttribute:  e.PrimaryNameAttribute,
		IsCustomEntity:        e.IsCustomEntity,
		IsManaged:             e.IsManaged,
		ObjectTypeCode:        e.ObjectTypeCode,
		SchemaName:            e.SchemaName,
		IsActivity:            e.IsActivity,
		IsIntersect:           e.IsIntersect,
		Capabilities: domain.EntityCapabilities{
			CanCreate:                        true,
			CanRead:                          true,
			CanUpdate:                        true,
			CanDelete:                        true,
			CanBeInBusinessProcess:           e.CanBeInManyToMany.Value,
			CanBeRelatedEntityInRelationship: e.CanBeRelatedEntityInRelationship.Value,
			CanBePrimaryEntityInRelationship: e.CanBePrimaryEntityInRelationship.Value,
		},
	}
}

type optionDTO struct {
	Value       int     `json:"Value"`
	Label       label   `json:"Label"`
	Description label   `json:"Description"`
	Color       *string `json:"Color"`
}

type optionSetDTO struct {
	Name     string      `json:"Name"`
	IsGlobal bool        `json:"IsGlobal"`
	Options  []optionDTO `json:"Options"`
}

type requiredLevel struct {
	Value string `json:"Value"`
}

type attributeDTO struct {
	ODataType         string         `json:"@odata.type"`
	LogicalName       string         `json:"LogicalName"`
	SchemaName        string         `json:"SchemaName"`
	AttributeType     string         `json:"AttributeType"`
	DisplayName       label          `json:"DisplayName"`
	Description       label          `json:"Description"`
	IsPrimaryID       bool           `json:"IsPrimaryId"`
	IsPrimaryName     bool           `json:"IsPrimaryName"`
	IsCustomAttribute bool           `json:"IsCustomAttribute"`
	IsManaged         bool           `json:"IsManaged"`
	IsValidForRead    bool           `json:"IsValidForRead"`
	IsValidForUpdate  bool           `json:"IsValidForUpdate"`
	RequiredLevel     *requiredLevel `json:"RequiredLevel"`

	MaxLength       *int          `json:"MaxLength"`
	Format          *string       `json:"Format"`
	MinValue        *json.Number  `json:"MinValue"`
	MaxValue        *json.Number  `json:"MaxValue"`
	Precision       *int          `json:"Precision"`
	PrecisionSource *int          `json:"PrecisionSource"`
	Targets         []string      `json:"Targets"`
	OptionSet       *optionSetDTO `json:"OptionSet"`
}

func (a attributeDTO) toDomain() domain.AttributeMetadata {
	out := domain.AttributeMetadata{
		LogicalName:       a.LogicalName,
		DisplayName:       a.DisplayName.text(),
		Description:       a.Description.text(),
		SchemaName:        a.SchemaName,
		AttributeType:     a.AttributeType,
		IsPrimaryID:       a.IsPrimaryID,
		IsPrimaryName:     a.IsPrimaryName,
		IsCustomAttribute: a.IsCustomAttribute,
		IsManaged:         a.IsManaged,
		IsRequired:        a.RequiredLevel != nil && a.RequiredLevel.Value == requiredByApp,
		CanRead:           a.IsValidForRead,
		CanUpdate:         a.IsValidForUpdate,
		Detail:            domain.OtherDetail{},
	}

	switch strings.TrimPrefix(a.ODataType, odataTypePrefix) {
	case "StringAttributeMetadata":
		out.Detail = domain.StringDetail{MaxLength: a.MaxLength, Format: a.format()}
	case "IntegerAttributeMetadata":
		out.Detail = domain.IntegerDetail{MinValue: toInt(a.MinValue), MaxValue: toInt(a.MaxValue), Format: a.format()}
	case "DecimalAttributeMetadata":
		out.Detail = domain.DecimalDetail{MinValue: toFloat(a.MinValue), MaxValue: toFloat(a.MaxValue), Precision: a.Precision}
	case "MoneyAttributeMetadata":
		out.Detail = domain.MoneyDetail{
			MinValue:        toFloat(a.MinValue),
			MaxValue:        toFloat(a.MaxValue),
			Precision:       a.Precision,
			PrecisionSource: a.PrecisionSource,
		}
	case "DateTimeAttributeMetadata":
		out.Detail = domain.DateTimeDetail{Format: a.format()}
	case "LookupAttributeMetadata":
		out.Detail = domain.LookupDetail{Targets: a.Targets}
	case "PicklistAttributeMetadata":
		out.Detail = a.picklist()
	}
	return out
}

func (a attributeDTO) format() string {
	if a.Format == nil {
		return ""
	}
	return *a.Format
}

func (a attributeDTO) picklist() domain.PicklistDetail {
	detail := domain.PicklistDetail{}
	if a.OptionSet == nil {
		return detail
	}
	detail.IsGlobal = a.OptionSet.IsGlobal
	detail.OptionSetName = a.OptionSet.Name
	for _, o := range a.OptionSet.Options {
		opt := domain.OptionMetadata{
			Value:       o.Value,
			Label:       o.Label.text(),
			Description: o.Description.text(),
		}
		if o.Color != nil {
			opt.Color = *o.Color
		}
		detail.Options = append(detail.Options, opt)
	}
	return detail
}

func toInt(n *json.Number) *int64 {
	if n == nil {
		return nil
	}
	v, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return nil
		}
		v = int64(f)
	}
	return &v
}

func toFloat(n *json.Number) *float64 {
	if n == nil {
		return nil
	}
	v, err := n.Float64()
	if err != nil {
		return nil
	}
	return &v
}

type cascadeDTO struct {
	Delete     string `json:"Delete"`
	Assign     string `json:"Assign"`
	Share      string `json:"Share"`
	Unshare    string `json:"Unshare"`
	Reparent   string `json:"Reparent"`
	RollupView string `json:"RollupView"`
}

type oneToManyDTO struct {
	SchemaName                              string      `json:"SchemaName"`
	ReferencedEntity                        string      `json:"ReferencedEntity"`
	ReferencingEntity                       string      `json:"ReferencingEntity"`
	ReferencingAttribute                    string      `json:"ReferencingAttribute"`
	ReferencedEntityNavigationPropertyName  string      `json:"ReferencedEntityNavigationPropertyName"`
	ReferencingEntityNavigationPropertyName string      `json:"ReferencingEntityNavigationPropertyName"`
	IsCustomRelationship                    bool        `json:"IsCustomRelationship"`
	IsManaged                               bool        `json:"IsManaged"`
	CascadeConfiguration                    *cascadeDTO `json:"CascadeConfiguration"`
}

func (r oneToManyDTO) toDomain(kind string) domain.RelationshipMetadata {
	out := domain.RelationshipMetadata{
		SchemaName:                              r.SchemaName,
		RelationshipType:                        kind,
		PrimaryEntity:                           r.ReferencedEntity,
		RelatedEntity:                           r.ReferencingEntity,
		IsCustomRelationship:                    r.IsCustomRelationship,
		IsManaged:                               r.IsManaged,
		LookupAttributeName:                     r.ReferencingAttribute,
		ReferencedEntityNavigationPropertyName:  r.ReferencedEntityNavigationPropertyName,
		ReferencingEntityNavigationPropertyName: r.ReferencingEntityNavigationPropertyName,
	}
	if c := r.CascadeConfiguration; c != nil {
		out.CascadeConfiguration = &domain.CascadeConfiguration{
			Delete:   c.Delete,
			Assign:   c.Assign,
			Share:    c.Share,
			Unshare:  c.Unshare,
			Reparent: c.Reparent,
			Rollup:   c.RollupView,
		}
	}
	return out
}

type manyToManyDTO struct {
	SchemaName                    string `json:"SchemaName"`
	Entity1LogicalName            string `json:"Entity1LogicalName"`
	Entity2LogicalName            string `json:"Entity2LogicalName"`
	IntersectEntityName           string `json:"IntersectEntityName"`
	Entity1NavigationPropertyName string `json:"Entity1NavigationPropertyName"`
	Entity2NavigationPropertyName string `json:"Entity2NavigationPropertyName"`
	IsCustomRelationship          bool   `json:"IsCustomRelationship"`
	IsManaged                     bool   `json:"IsManaged"`
}

func (r manyToManyDTO) toDomain() domain.RelationshipMetadata {
	return domain.RelationshipMetadata{
		SchemaName:                              r.SchemaName,
		RelationshipType:                        domain.RelationshipManyToMany,
		PrimaryEntity:                           r.Entity1LogicalName,
		RelatedEntity:                           r.Entity2LogicalName,
		IsCustomRelationship:                    r.IsCustomRelationship,
		IsManaged:                               r.IsManaged,
		IntersectEntityName:                     r.IntersectEntityName,
		ReferencedEntityNavigationPropertyName:  r.Entity1NavigationPropertyName,
		ReferencingEntityNavigationPropertyName: r.Entity2NavigationPropertyName,
	}
}

type relationshipsDTO struct {
	OneToMany  []oneToManyDTO  `json:"OneToManyRelationships"`
	ManyToOne  []oneToManyDTO  `json:"ManyToOneRelationships"`
	ManyToMany []manyToManyDTO `json:"ManyToManyRelationships"`
}
