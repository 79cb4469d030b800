// Package tools provides the ecoroute MCP tool implementations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/ecoroute/pkg/core"
	"github.com/NERVsystems/ecoroute/pkg/eco"
	"github.com/NERVsystems/ecoroute/pkg/monitoring"
	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

// Registry contains all tool definitions and handlers
type Registry struct {
	logger  *slog.Logger
	factory *core.ToolFactory
	eco     *EcoHandlers
	planner TripPlanner
}

// NewRegistry creates a new tool registry. planner may be nil, in which case
// plan_trip is not offered.
func NewRegistry(logger *slog.Logger, est *eco.Estimator, planner TripPlanner) *Registry {
	return &Registry{
		logger:  logger,
		factory: core.NewToolFactory(vehicleNames()),
		eco:     NewEcoHandlers(est),
		planner: planner,
	}
}

// ToolDefinition represents an ecoroute MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     server.ToolHandlerFunc
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	defs := []ToolDefinition{
		{
			Name:        "get_version",
			Description: "Get the version and build information of the ecoroute service",
			Handler:     HandleGetVersion,
		},
		{
			Name:        "list_vehicles",
			Description: "List supported vehicle types with emission factors, base fuel efficiency, fuel prices and known weather conditions",
			Handler:     r.eco.HandleListVehicles,
		},
		{
			Name:        "estimate_trip",
			Description: "Estimate fuel consumption, fuel cost, CO2 emissions and eco score for a trip. Parameters: distance_km (number), vehicle_type (string), traffic_delay_seconds (number), weather_condition (string)",
			Handler:     r.eco.HandleEstimateTrip,
		},
		{
			Name:        "eco_score",
			Description: "Rate a trip from 0 to 100 for fuel efficiency, emissions, traffic and weather. Parameters: distance_km (number), vehicle_type (string), traffic_delay_seconds (number), weather_condition (string)",
			Handler:     r.eco.HandleEcoScore,
		},
		{
			Name:        "weather_emissions",
			Description: "CO2 emissions for a trip considering weather but not traffic. Parameters: distance_km (number), vehicle_type (string), weather_condition (string)",
			Handler:     r.eco.HandleWeatherEmissions,
		},
	}

	if r.planner != nil {
		defs = append(defs, ToolDefinition{
			Name:        "plan_trip",
			Description: "Plan a trip between two addresses: geocode both, route with live traffic when available, fetch destination weather, then estimate fuel, cost, CO2 and eco score. Parameters: from (string), to (string), vehicle_type (string)",
			Handler:     HandlePlanTrip(r.planner),
		})
	}

	for i := range defs {
		defs[i].Tool = r.toolFor(defs[i].Name, defs[i].Description)
	}
	return defs
}

// toolFor builds the schema of a named tool
func (r *Registry) toolFor(name, description string) mcp.Tool {
	switch name {
	case "estimate_trip", "eco_score":
		return r.factory.CreateTripTool(name, description)
	case "weather_emissions":
		return r.factory.CreateWeatherTool(name, description)
	case "plan_trip":
		return r.factory.CreatePlanTool(name, description)
	default:
		return r.factory.CreateBasicTool(name, description)
	}
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, r.wrapWithTracing(def.Name, def.Handler))
	}
}

// wrapWithTracing wraps a tool handler with a span and request metrics
func (r *Registry) wrapWithTracing(toolName string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		spanName := fmt.Sprintf("mcp.tool.%s", toolName)
		ctx, span := tracing.StartSpan(ctx, spanName,
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		startTime := time.Now()
		result, err := handler(ctx, req)
		duration := time.Since(startTime)

		// Tool errors are reported in the result, not as Go errors
		status := tracing.StatusSuccess
		switch {
		case err != nil:
			status = tracing.StatusError
			span.RecordError(err)
			span.SetAttributes(tracing.ErrorAttributes(err)...)
			span.SetStatus(codes.Error, err.Error())
		case result != nil && result.IsError:
			status = tracing.StatusError
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			span.SetStatus(codes.Ok, "")
		}

		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(tracing.MCPToolAttributes(toolName, status, duration.Milliseconds(), resultSize)...)
		monitoring.RecordToolRequest(toolName, duration, status == tracing.StatusSuccess)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", duration.Milliseconds(),
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// Handler returns the wrapped handler of a tool, for callers outside MCP
func (r *Registry) Handler(name string) (server.ToolHandlerFunc, bool) {
	for _, def := range r.GetToolDefinitions() {
		if def.Name == name {
			return r.wrapWithTracing(def.Name, def.Handler), true
		}
	}
	return nil, false
}
