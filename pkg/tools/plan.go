package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/ecoroute/pkg/eco"
	"github.com/NERVsystems/ecoroute/pkg/monitoring"
	"github.com/NERVsystems/ecoroute/pkg/planner"
)

// PlanInput defines the input parameters for plan_trip
type PlanInput struct {
	From        string `json:"from"`
	To          string `json:"to"`
	VehicleType string `json:"vehicle_type"`
}

// TripPlanner plans trips between two addresses
type TripPlanner interface {
	Plan(ctx context.Context, req planner.PlanRequest) (*planner.PlanResult, error)
}

// HandlePlanTrip returns the plan_trip handler for p
func HandlePlanTrip(p TripPlanner) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("plan_trip", func(ctx context.Context, input PlanInput, logger *slog.Logger) (interface{}, error) {
		vehicle, err := eco.ParseVehicleClass(input.VehicleType)
		if err != nil {
			return nil, err
		}

		res, err := p.Plan(ctx, planner.PlanRequest{
			From:    input.From,
			To:      input.To,
			Vehicle: vehicle,
		})
		if err != nil {
			return nil, err
		}

		monitoring.RecordEcoScore(vehicle.String(), res.Score.Value)
		logger.Info("trip planned",
			"from", res.Origin.Name,
			"to", res.Destination.Name,
			"distance_km", res.DistanceKm,
			"weather", res.Weather.Condition,
			"eco_score", res.Score.Value,
		)
		return res, nil
	})
}
