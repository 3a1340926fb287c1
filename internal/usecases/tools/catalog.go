package tools

import (
	"github.com/invopop/jsonschema"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
)

// Tool names.
const (
	GetEnvironmentInfo   = "get_environment_info"
	ListEnvironments     = "list_environments"
	SetEnvironment       = "set_environment"
	ListEntities         = "list_entities"
	GetEntityDetails     = "get_entity_details"
	ListEntityAttributes = "list_entity_attributes"
)

type noArgs struct{}

type setEnvironmentArgs struct {
	EnvironmentName string `json:"environmentName" jsonschema_description:"Name of the environment to switch to (e.g., development, production, sandbox)"`
}

type listEntitiesArgs struct {
	CustomOnly bool `json:"customOnly,omitempty" jsonschema_description:"If true, only return custom entities; if false, return all entities"`
}

type entityArgs struct {
	EntityLogicalName string `json:"entityLogicalName" jsonschema_description:"Logical name of the entity (e.g., account, contact, custom_entity)"`
}

type listAttributesArgs struct {
	EntityLogicalName string `json:"entityLogicalName" jsonschema_description:"Logical name of the entity (e.g., account, contact)"`
	CustomOnly        bool   `json:"customOnly,omitempty" jsonschema_description:"If true, only return custom attributes; if false, return all attributes"`
}

// reflectInputSchema derives the input schema of a tool from its argument
// struct. Fields without omitempty are required.
func reflectInputSchema[A any]() domain.InputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))

	schema := domain.InputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
		Required:   []string{},
	}
	if s == nil {
		return schema
	}

	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			prop := map[string]interface{}{"type": el.Value.Type}
			if el.Value.Description != "" {
				prop["description"] = el.Value.Description
			}
			schema.Properties[el.Key] = prop
		}
	}
	schema.Required = append(schema.Required, s.Required...)
	return schema
}
