package core

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolFactory builds tool definitions that share parameter conventions
type ToolFactory struct {
	vehicleTypes []string
}

// NewToolFactory creates a tool factory. vehicleTypes populates the enum of
// every vehicle_type parameter.
func NewToolFactory(vehicleTypes []string) *ToolFactory {
	return &ToolFactory{vehicleTypes: vehicleTypes}
}

// CreateBasicTool creates a new tool with the specified name and description
func (f *ToolFactory) CreateBasicTool(name, description string) mcp.Tool {
	return mcp.NewTool(name, mcp.WithDescription(description))
}

func (f *ToolFactory) vehicleParam() mcp.ToolOption {
	return mcp.WithString("vehicle_type",
		mcp.Required(),
		mcp.Description("Vehicle class"),
		mcp.Enum(f.vehicleTypes...),
	)
}

func weatherParam() mcp.ToolOption {
	return mcp.WithString("weather_condition",
		mcp.Description("Weather condition such as Clear, Rain or Snow. Unknown conditions have no impact."),
		mcp.DefaultString("Clear"),
	)
}

// CreateTripTool creates a tool taking the trip parameters
func (f *ToolFactory) CreateTripTool(name, description string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithNumber("distance_km",
			mcp.Required(),
			mcp.Description("Trip distance in kilometres (must be greater than 0)"),
		),
		f.vehicleParam(),
		mcp.WithNumber("traffic_delay_seconds",
			mcp.Description("Extra travel time caused by traffic, in seconds"),
			mcp.DefaultNumber(0),
			mcp.Min(0),
		),
		weatherParam(),
	)
}

// CreateWeatherTool creates a tool taking distance, vehicle and weather only
func (f *ToolFactory) CreateWeatherTool(name, description string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithNumber("distance_km",
			mcp.Required(),
			mcp.Description("Trip distance in kilometres (must be greater than 0)"),
		),
		f.vehicleParam(),
		weatherParam(),
	)
}

// CreatePlanTool creates a tool for planning a trip between two addresses
func (f *ToolFactory) CreatePlanTool(name, description string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithString("from",
			mcp.Required(),
			mcp.Description("Start address or place name"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Destination address or place name"),
		),
		f.vehicleParam(),
	)
}
