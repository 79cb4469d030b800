package tools

import (
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/ecoroute/pkg/core"
	"github.com/NERVsystems/ecoroute/pkg/eco"
)

// Guidance returned with estimator input errors
const (
	GuidanceDistance = "Provide a trip distance in kilometres greater than 0."
	GuidanceDelay    = "Traffic delay is extra travel time in seconds and must be 0 or more."
	GuidanceVehicle  = "Use list_vehicles to see the supported vehicle types."
	GuidanceGeneral  = "Please correct the parameters and try again."
)

// AsMCPError maps any error from the estimator, planner or collaborators to
// a coded MCPError
func AsMCPError(err error) *core.MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *core.MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var valErr core.ValidationError
	if errors.As(err, &valErr) {
		return core.NewError(core.ErrorCode(valErr.Code), valErr.Message).WithGuidance(valErr.Guidance)
	}

	var inErr *eco.InputError
	if errors.As(err, &inErr) {
		switch inErr.Field {
		case eco.FieldDistance:
			return core.NewError(core.ErrInvalidDistance, inErr.Error()).WithGuidance(GuidanceDistance)
		case eco.FieldTrafficDelay:
			return core.NewError(core.ErrInvalidDelay, inErr.Error()).WithGuidance(GuidanceDelay)
		case eco.FieldVehicleType:
			return core.NewError(core.ErrUnknownVehicle, inErr.Error()).
				WithGuidance(GuidanceVehicle).
				WithSuggestions(vehicleNames()...)
		default:
			return core.NewError(core.ErrInvalidInput, inErr.Error()).WithGuidance(GuidanceGeneral)
		}
	}

	return core.NewError(core.ErrInternalError, err.Error())
}

// ErrorResult converts err to an MCP error result
func ErrorResult(err error) *mcp.CallToolResult {
	return AsMCPError(err).ToMCPResult()
}

func vehicleNames() []string {
	classes := eco.AllVehicleClasses()
	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = c.String()
	}
	return names
}
