package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/ecoroute/pkg/eco"
	"github.com/NERVsystems/ecoroute/pkg/monitoring"
)

// VehicleInfo describes one supported vehicle class
type VehicleInfo struct {
	Type           string  `json:"vehicle_type"`
	DisplayName    string  `json:"display_name"`
	EmissionFactor float64 `json:"emission_factor_kg_per_km"`
	BaseEfficiency float64 `json:"base_efficiency_km_per_l"`
	FuelType       string  `json:"fuel_type"`
	UnitPrice      float64 `json:"unit_price"`
}

// VehicleList is the output of list_vehicles
type VehicleList struct {
	Vehicles          []VehicleInfo `json:"vehicles"`
	Currency          string        `json:"currency"`
	WeatherConditions []string      `json:"weather_conditions"`
}

// EstimateOutput is the output of estimate_trip
type EstimateOutput struct {
	eco.TripEstimate
	EcoScore eco.EcoScore `json:"eco_score"`
}

// ScoreOutput is the output of eco_score
type ScoreOutput struct {
	eco.EcoScore
	Efficiency        float64 `json:"efficiency_km_per_l"`
	CO2EmissionsKg    float64 `json:"co2_emissions_kg"`
	WeatherMultiplier float64 `json:"weather_multiplier"`
}

// WeatherEmissionsOutput is the output of weather_emissions
type WeatherEmissionsOutput struct {
	DistanceKm        float64 `json:"distance_km"`
	VehicleType       string  `json:"vehicle_type"`
	WeatherCondition  string  `json:"weather_condition"`
	WeatherMultiplier float64 `json:"weather_multiplier"`
	WeatherRecognized bool    `json:"weather_recognized"`
	CO2EmissionsKg    float64 `json:"co2_emissions_kg"`
}

// EcoHandlers serves the estimation tools from one estimator
type EcoHandlers struct {
	estimator *eco.Estimator
}

// NewEcoHandlers creates handlers around est
func NewEcoHandlers(est *eco.Estimator) *EcoHandlers {
	return &EcoHandlers{estimator: est}
}

// ListVehicles returns the vehicle table with current prices
func (h *EcoHandlers) ListVehicles() VehicleList {
	prices := h.estimator.Prices()
	profiles := eco.Profiles()

	out := VehicleList{
		Vehicles:          make([]VehicleInfo, 0, len(profiles)),
		Currency:          prices.Currency(),
		WeatherConditions: h.estimator.Weather().Conditions(),
	}
	for _, p := range profiles {
		price, _ := prices.UnitPrice(p.FuelCategory)
		out.Vehicles = append(out.Vehicles, VehicleInfo{
			Type:           p.Class.String(),
			DisplayName:    p.DisplayName,
			EmissionFactor: p.EmissionFactor,
			BaseEfficiency: p.BaseEfficiency,
			FuelType:       string(p.FuelCategory),
			UnitPrice:      price,
		})
	}
	return out
}

// HandleListVehicles implements list_vehicles
func (h *EcoHandlers) HandleListVehicles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := jsonResult(h.ListVehicles())
	if err != nil {
		return ErrorResult(err), nil
	}
	return result, nil
}

// HandleEstimateTrip implements estimate_trip
func (h *EcoHandlers) HandleEstimateTrip(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := slog.Default().With("tool", "estimate_trip")

	trip, err := parseTripRequest(req)
	if err != nil {
		logger.Warn("invalid trip parameters", "error", err)
		return ErrorResult(err), nil
	}

	est, err := h.estimator.Estimate(ctx, trip)
	if err != nil {
		logger.Warn("estimate rejected", "error", err)
		return ErrorResult(err), nil
	}

	logger.Debug("trip estimated",
		"vehicle_type", trip.Vehicle,
		"distance_km", trip.DistanceKm,
		"fuel_l", est.FuelConsumptionL,
		"enrichment", est.Enrichment.Status,
	)

	score := est.EcoScore()
	monitoring.RecordEcoScore(trip.Vehicle.String(), score.Value)

	result, err := jsonResult(EstimateOutput{TripEstimate: est, EcoScore: score})
	if err != nil {
		return ErrorResult(err), nil
	}
	return result, nil
}

// HandleEcoScore implements eco_score. It uses the local computation only.
func (h *EcoHandlers) HandleEcoScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := slog.Default().With("tool", "eco_score")

	trip, err := parseTripRequest(req)
	if err != nil {
		logger.Warn("invalid trip parameters", "error", err)
		return ErrorResult(err), nil
	}

	est, err := h.estimator.Compute(trip)
	if err != nil {
		return ErrorResult(err), nil
	}

	score := est.EcoScore()
	monitoring.RecordEcoScore(trip.Vehicle.String(), score.Value)

	result, err := jsonResult(ScoreOutput{
		EcoScore:          score,
		Efficiency:        est.Efficiency,
		CO2EmissionsKg:    est.CO2EmissionsKg,
		WeatherMultiplier: est.WeatherMultiplier,
	})
	if err != nil {
		return ErrorResult(err), nil
	}
	return result, nil
}

// HandleWeatherEmissions implements weather_emissions
func (h *EcoHandlers) HandleWeatherEmissions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := slog.Default().With("tool", "weather_emissions")

	km, err := parseDistance(req)
	if err != nil {
		return ErrorResult(err), nil
	}
	vehicle, err := parseVehicle(req)
	if err != nil {
		return ErrorResult(err), nil
	}
	condition := mcp.ParseString(req, "weather_condition", DefaultWeatherCondition)

	co2, err := h.estimator.WeatherEmissions(km, vehicle, condition)
	if err != nil {
		logger.Warn("emissions rejected", "error", err)
		return ErrorResult(err), nil
	}
	multiplier, recognized := h.estimator.Weather().Multiplier(condition)

	result, err := jsonResult(WeatherEmissionsOutput{
		DistanceKm:        km,
		VehicleType:       vehicle.String(),
		WeatherCondition:  condition,
		WeatherMultiplier: multiplier,
		WeatherRecognized: recognized,
		CO2EmissionsKg:    co2,
	})
	if err != nil {
		return ErrorResult(err), nil
	}
	return result, nil
}
