package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/ecoroute/pkg/core"
	"github.com/NERVsystems/ecoroute/pkg/eco"
)

// DefaultWeatherCondition is assumed when a tool call omits the weather
const DefaultWeatherCondition = "Clear"

// InputParser is a generic function to parse request arguments into a strongly typed struct
func InputParser[T any](req mcp.CallToolRequest) (T, *mcp.CallToolResult, error) {
	var input T

	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return input, core.NewError(core.ErrInvalidInput, fmt.Sprintf("Invalid input format: %v", err)).ToMCPResult(), err
	}

	if err := json.Unmarshal(inputJSON, &input); err != nil {
		return input, core.NewError(core.ErrInvalidInput, fmt.Sprintf("Failed to parse input: %v", err)).ToMCPResult(), err
	}

	return input, nil, nil
}

// WithParsedInput is a higher-order function that handles request parsing and error handling
func WithParsedInput[T any](
	handlerName string,
	handler func(ctx context.Context, input T, logger *slog.Logger) (interface{}, error),
) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := slog.Default().With("tool", handlerName)

		input, errResult, err := InputParser[T](req)
		if err != nil {
			logger.Error("failed to parse input", "error", err)
			return errResult, nil
		}

		result, err := handler(ctx, input, logger)
		if err != nil {
			logger.Warn("handler error", "error", err)
			return ErrorResult(err), nil
		}

		out, err := jsonResult(result)
		if err != nil {
			logger.Error("failed to marshal result", "error", err)
			return core.NewError(core.ErrInternalError, "Failed to generate result").ToMCPResult(), nil
		}
		return out, nil
	}
}

// jsonResult returns v as structured content with a JSON text fallback
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(v, string(data)), nil
}

// parseVehicle reads the required vehicle_type argument
func parseVehicle(req mcp.CallToolRequest) (eco.VehicleClass, error) {
	raw, err := core.ParseRequiredString(req, "vehicle_type")
	if err != nil {
		return "", err
	}
	return eco.ParseVehicleClass(raw)
}

// parseDistance reads the required distance_km argument
func parseDistance(req mcp.CallToolRequest) (float64, error) {
	km, present, err := core.ParseNumber(req, "distance_km", core.ErrInvalidDistance)
	if err != nil {
		return 0, err
	}
	if !present {
		return 0, core.NewValidationError(core.ErrMissingParameter, "distance_km is required")
	}
	if err := core.ValidateDistance(km); err != nil {
		return 0, err
	}
	return km, nil
}

// parseTripRequest reads the trip parameters shared by the estimation tools
func parseTripRequest(req mcp.CallToolRequest) (eco.TripRequest, error) {
	km, err := parseDistance(req)
	if err != nil {
		return eco.TripRequest{}, err
	}
	vehicle, err := parseVehicle(req)
	if err != nil {
		return eco.TripRequest{}, err
	}
	delay, _, err := core.ParseNumber(req, "traffic_delay_seconds", core.ErrInvalidDelay)
	if err != nil {
		return eco.TripRequest{}, err
	}
	if err := core.ValidateDelay(delay); err != nil {
		return eco.TripRequest{}, err
	}

	return eco.TripRequest{
		DistanceKm:          km,
		Vehicle:             vehicle,
		TrafficDelaySeconds: delay,
		WeatherCondition:    mcp.ParseString(req, "weather_condition", DefaultWeatherCondition),
	}, nil
}
