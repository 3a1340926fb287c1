// Package tools routes tool calls to their metadata operations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/logging"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/usecases/connection"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/usecases/environment"
)

// ConnectionManager is the part of connection.Manager the dispatcher uses.
type ConnectionManager interface {
	Acquire(ctx context.Context) (domain.Session, error)
	SwitchTo(ctx context.Context, name string) (connection.SwitchResult, error)
	TestConnection(ctx context.Context) connection.TestResult
	Registry() *environment.Registry
}

type handlerFunc func(ctx context.Context, raw json.RawMessage) interface{}

type registeredTool struct {
	tool    domain.Tool
	handler handlerFunc
}

// Dispatcher validates tool arguments and runs the matching operation.
// Operation failures are returned as result objects carrying an error field;
// only an unknown tool name is reported as a Go error.
type Dispatcher struct {
	conns  ConnectionManager
	clock  domain.Clock
	logger *logging.Logger

	tools  []registeredTool
	byName map[string]int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock used for result timestamps.
func WithClock(clock domain.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher serving the fixed tool set.
func NewDispatcher(conns ConnectionManager, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		conns:  conns,
		clock:  domain.SystemClock{},
		logger: logging.NewNop(),
		byName: make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}

	register(d, GetEnvironmentInfo,
		"Get information about the current Dataverse environment including connection status and version",
		func(ctx context.Context, _ noArgs) interface{} { return d.environmentInfo(ctx) })
	register(d, ListEnvironments,
		"List all available Dataverse environments configured in the server",
		func(ctx context.Context, _ noArgs) interface{} { return d.listEnvironments() })
	register(d, SetEnvironment,
		"Switch to a different configured Dataverse environment",
		d.setEnvironment)
	register(d, ListEntities,
		"List all entities (tables) in the current Dataverse environment with optional filtering",
		d.listEntities)
	register(d, GetEntityDetails,
		"Get detailed metadata for a specific entity (table) including all its properties and settings",
		d.entityDetails)
	register(d, ListEntityAttributes,
		"List all attributes (columns/fields) for a specific entity with their metadata",
		d.listAttributes)

	return d
}

func register[A any](d *Dispatcher, name, description string, run func(context.Context, A) interface{}) {
	tool := domain.Tool{
		Name:        name,
		Description: description,
		InputSchema: reflectInputSchema[A](),
	}
	handler := func(ctx context.Context, raw json.RawMessage) interface{} {
		var args A
		if err := json.Unmarshal(raw, &args); err != nil {
			return ErrorResult{Error: fmt.Sprintf("invalid arguments: %v", err)}
		}
		return run(ctx, args)
	}

	d.byName[name] = len(d.tools)
	d.tools = append(d.tools, registeredTool{tool: tool, handler: handler})
}

// Tools returns the catalog in a fixed order.
func (d *Dispatcher) Tools() []domain.Tool {
	out := make([]domain.Tool, len(d.tools))
	for i, t := range d.tools {
		out[i] = t.tool
	}
	return out
}

// Call runs the named tool. Absent arguments are treated as an empty object.
func (d *Dispatcher) Call(ctx context.Context, name string, arguments json.RawMessage) (interface{}, error) {
	idx, ok := d.byName[name]
	if !ok {
		return nil, domain.NewToolNotFoundError(name)
	}
	t := d.tools[idx]

	if len(arguments) == 0 || string(arguments) == "null" {
		arguments = json.RawMessage("{}")
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(arguments, &present); err != nil {
		return ErrorResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	for _, required := range t.tool.InputSchema.Required {
		if v, ok := present[required]; !ok || string(v) == "null" {
			err := domain.NewMissingArgumentError(required)
			d.logger.Warn("Tool call rejected", logging.Fields{"tool": name, "error": err.Error()})
			return ErrorResult{Error: err.Error()}, nil
		}
	}

	d.logger.Debug("Calling tool", logging.Fields{"tool": name})
	result := t.handler(ctx, arguments)
	if e, ok := result.(ErrorResult); ok {
		d.logger.Error("Tool call failed", logging.Fields{"tool": name, "error": e.Error})
	}
	return result, nil
}

func (d *Dispatcher) environmentInfo(ctx context.Context) interface{} {
	name, displayName := d.conns.Registry().Current()
	test := d.conns.TestConnection(ctx)

	status := StatusConnected
	if !test.Success {
		status = StatusFailed
	}
	return EnvironmentInfoResult{
		CurrentEnvironment: name,
		DisplayName:        displayName,
		ConnectionStatus:   status,
		ConnectionMessage:  test.Message,
		OrganizationName:   test.OrganizationName,
		DataverseVersion:   test.Version,
		Timestamp:          d.clock.Now().UTC(),
	}
}

func (d *Dispatcher) listEnvironments() interface{} {
	registry := d.conns.Registry()
	current := registry.CurrentName()
	names := registry.List()

	envs := make([]EnvironmentSummary, 0, len(names))
	for _, name := range registry.Names() {
		envs = append(envs, EnvironmentSummary{
			Name:        name,
			DisplayName: names[name],
			IsCurrent:   name == current,
		})
	}
	return ListEnvironmentsResult{
		CurrentEnvironment:    current,
		AvailableEnvironments: envs,
	}
}

func (d *Dispatcher) setEnvironment(ctx context.Context, args setEnvironmentArgs) interface{} {
	res, err := d.conns.SwitchTo(ctx, args.EnvironmentName)
	if err != nil {
		if domain.IsEnvironmentNotFound(err) {
			return SetEnvironmentResult{
				Success:   false,
				Message:   err.Error(),
				Error:     err.Error(),
				Timestamp: d.clock.Now().UTC(),
			}
		}
		return ErrorResult{Error: err.Error()}
	}

	out := SetEnvironmentResult{
		Success:   res.Success,
		Message:   res.Message,
		Timestamp: d.clock.Now().UTC(),
	}
	if res.Success {
		out.NewEnvironment = args.EnvironmentName
	}
	return out
}

func (d *Dispatcher) listEntities(ctx context.Context, args listEntitiesArgs) interface{} {
	session, err := d.conns.Acquire(ctx)
	if err != nil {
		return ErrorResult{Error: err.Error()}
	}
	entities, err := session.ListEntities(ctx, args.CustomOnly)
	if err != nil {
		return ErrorResult{Error: err.Error()}
	}

	sorted := make([]domain.EntityMetadata, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DisplayName != sorted[j].DisplayName {
			return sorted[i].DisplayName < sorted[j].DisplayName
		}
		return sorted[i].LogicalName < sorted[j].LogicalName
	})

	summaries := make([]EntitySummary, 0, len(sorted))
	for _, e := range sorted {
		summaries = append(summaries, summarizeEntity(e))
	}
	return ListEntitiesResult{
		TotalCount: len(summaries),
		CustomOnly: args.CustomOnly,
		Entities:   summaries,
	}
}

func (d *Dispatcher) entityDetails(ctx context.Context, args entityArgs) interface{} {
	session, err := d.conns.Acquire(ctx)
	if err != nil {
		return ErrorResult{Error: err.Error()}
	}
	entity, err := session.GetEntity(ctx, args.EntityLogicalName)
	if err != nil {
		return ErrorResult{Error: err.Error()}
	}
	if entity == nil {
		return ErrorResult{Error: domain.NewEntityNotFoundError(args.EntityLogicalName).Error()}
	}

	relationships, err := session.ListRelationships(ctx, args.EntityLogicalName)
	if err != nil {
		d.logger.Warn("Failed to load relationships", logging.Fields{"entity": args.EntityLogicalName, "error": err.Error()})
		relationships = nil
	}

	return EntityDetailsResult{
		EntityMetadata: entity,
		Relationships:  relationships,
		RetrievedAt:    d.clock.Now().UTC(),
	}
}

func (d *Dispatcher) listAttributes(ctx context.Context, args listAttributesArgs) interface{} {
	session, err := d.conns.Acquire(ctx)
	if err != nil {
		return ErrorResult{Error: err.Error()}
	}
	attributes, err := session.ListAttributes(ctx, args.EntityLogicalName, args.CustomOnly)
	if err != nil {
		return ErrorResult{Error: err.Error()}
	}

	sorted := make([]domain.AttributeMetadata, len(attributes))
	copy(sorted, attributes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DisplayName != sorted[j].DisplayName {
			return sorted[i].DisplayName < sorted[j].DisplayName
		}
		return sorted[i].LogicalName < sorted[j].LogicalName
	})

	summaries := make([]AttributeSummary, 0, len(sorted))
	for _, a := range sorted {
		summaries = append(summaries, summarizeAttribute(a))
	}
	return ListAttributesResult{
		EntityLogicalName: args.EntityLogicalName,
		TotalCount:        len(summaries),
		CustomOnly:        args.CustomOnly,
		Attributes:        summaries,
	}
}
