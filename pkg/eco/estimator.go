package eco

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

const (
	// TrafficPenaltyPerHour is the efficiency loss per full hour of delay
	TrafficPenaltyPerHour = 0.1

	// DefaultEnrichmentTimeout bounds a single enrichment call
	DefaultEnrichmentTimeout = 5 * time.Second
)

// TripRequest is the input to the engine.
type TripRequest struct {
	DistanceKm          float64      `json:"distance_km"`
	Vehicle             VehicleClass `json:"vehicle_type"`
	TrafficDelaySeconds float64      `json:"traffic_delay_seconds"`
	WeatherCondition    string       `json:"weather_condition"`
}

// Validate checks the preconditions that do not need a lookup table
func (r TripRequest) Validate() error {
	if math.IsNaN(r.DistanceKm) || math.IsInf(r.DistanceKm, 0) || r.DistanceKm <= 0 {
		return &InputError{
			Field:  FieldDistance,
			Reason: fmt.Sprintf("must be a finite number greater than 0, got %v", r.DistanceKm),
		}
	}
	if math.IsNaN(r.TrafficDelaySeconds) || math.IsInf(r.TrafficDelaySeconds, 0) || r.TrafficDelaySeconds < 0 {
		return &InputError{
			Field:  FieldTrafficDelay,
			Reason: fmt.Sprintf("must be a finite number >= 0, got %v", r.TrafficDelaySeconds),
		}
	}
	return nil
}

// TripEstimate is the engine's result. Core figures are computed locally and
// never depend on the enrichment outcome.
type TripEstimate struct {
	Request TripRequest `json:"request"`

	FuelConsumptionL float64      `json:"fuel_consumption_l"`
	FuelCost         float64      `json:"fuel_cost"`
	Currency         string       `json:"currency"`
	UnitPrice        float64      `json:"unit_price"`
	CO2EmissionsKg   float64      `json:"co2_emissions_kg"`
	FuelType         FuelCategory `json:"fuel_type"`

	BaseEfficiency    float64 `json:"base_efficiency_km_per_l"`
	Efficiency        float64 `json:"efficiency_km_per_l"`
	TrafficMultiplier float64 `json:"traffic_multiplier"`
	WeatherMultiplier float64 `json:"weather_multiplier"`
	WeatherRecognized bool    `json:"weather_recognized"`

	// Display figures derived from the above
	CarbonIntensity  float64 `json:"carbon_intensity_kg_per_km"`
	TrafficImpactPct float64 `json:"traffic_impact_pct"`
	WeatherImpactPct float64 `json:"weather_impact_pct"`

	Enrichment Enrichment `json:"enrichment"`
}

// EcoScore scores the estimate with its own delay and weather multiplier
func (e TripEstimate) EcoScore() EcoScore {
	return Score(e, e.Request.TrafficDelaySeconds, e.WeatherMultiplier)
}

// EstimatorHooks receive observations from the estimator. Any hook may be nil.
type EstimatorHooks struct {
	// OnUnknownWeather is called when a condition is not in the weather table
	OnUnknownWeather func(condition string)

	// OnEnrichment is called after every enrichment attempt
	OnEnrichment func(status EnrichmentStatus, duration time.Duration)
}

// EstimatorOptions configures an Estimator
type EstimatorOptions struct {
	Weather *WeatherTable
	Prices  *FuelPriceTable

	// Source is optional; without it enrichment is reported as disabled
	Source            EnrichmentSource
	EnrichmentTimeout time.Duration

	Hooks  EstimatorHooks
	Logger *slog.Logger
}

// DefaultEstimatorOptions returns options using the default tables and no
// enrichment source
func DefaultEstimatorOptions() EstimatorOptions {
	return EstimatorOptions{
		Weather:           DefaultWeatherTable(),
		Prices:            DefaultFuelPriceTable(),
		EnrichmentTimeout: DefaultEnrichmentTimeout,
		Logger:            slog.Default(),
	}
}

// Estimator computes trip estimates. It holds only read-only tables and is
// safe for concurrent use.
type Estimator struct {
	weather *WeatherTable
	prices  *FuelPriceTable
	source  EnrichmentSource
	timeout time.Duration
	hooks   EstimatorHooks
	logger  *slog.Logger
}

// NewEstimator creates an estimator. Missing tables fall back to the defaults.
func NewEstimator(opts EstimatorOptions) *Estimator {
	if opts.Weather == nil {
		opts.Weather = DefaultWeatherTable()
	}
	if opts.Prices == nil {
		opts.Prices = DefaultFuelPriceTable()
	}
	if opts.EnrichmentTimeout <= 0 {
		opts.EnrichmentTimeout = DefaultEnrichmentTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Estimator{
		weather: opts.Weather,
		prices:  opts.Prices,
		source:  opts.Source,
		timeout: opts.EnrichmentTimeout,
		hooks:   opts.Hooks,
		logger:  opts.Logger.With("component", "estimator"),
	}
}

// Weather returns the estimator's weather table
func (e *Estimator) Weather() *WeatherTable {
	return e.weather
}

// Prices returns the estimator's fuel price table
func (e *Estimator) Prices() *FuelPriceTable {
	return e.prices
}

// TrafficMultiplier converts a traffic delay into an efficiency penalty.
// Zero delay gives exactly 1.0.
func TrafficMultiplier(delaySeconds float64) float64 {
	return 1 + (delaySeconds/3600)*TrafficPenaltyPerHour
}

// Compute runs the local estimation only. Enrichment is reported as disabled.
func (e *Estimator) Compute(req TripRequest) (TripEstimate, error) {
	if err := req.Validate(); err != nil {
		return TripEstimate{}, err
	}

	profile, err := req.Vehicle.Profile()
	if err != nil {
		return TripEstimate{}, err
	}

	traffic := TrafficMultiplier(req.TrafficDelaySeconds)
	weather, recognized := e.weather.Multiplier(req.WeatherCondition)
	if !recognized {
		e.logger.Debug("unknown weather condition, using neutral impact",
			"condition", req.WeatherCondition)
		if e.hooks.OnUnknownWeather != nil {
			e.hooks.OnUnknownWeather(req.WeatherCondition)
		}
	}

	combined := traffic * weather
	if !(combined > 0) || math.IsInf(combined, 0) {
		return TripEstimate{}, &InputError{
			Field:  FieldMultiplier,
			Reason: fmt.Sprintf("traffic x weather multiplier must be positive, got %v", combined),
		}
	}

	efficiency := profile.BaseEfficiency / combined
	consumption := req.DistanceKm / efficiency

	unitPrice, err := e.prices.UnitPrice(profile.FuelCategory)
	if err != nil {
		return TripEstimate{}, err
	}

	emissions := req.DistanceKm * profile.EmissionFactor * traffic * weather

	return TripEstimate{
		Request:           req,
		FuelConsumptionL:  consumption,
		FuelCost:          consumption * unitPrice,
		Currency:          e.prices.Currency(),
		UnitPrice:         unitPrice,
		CO2EmissionsKg:    emissions,
		FuelType:          profile.FuelCategory,
		BaseEfficiency:    profile.BaseEfficiency,
		Efficiency:        efficiency,
		TrafficMultiplier: traffic,
		WeatherMultiplier: weather,
		WeatherRecognized: recognized,
		CarbonIntensity:   emissions / req.DistanceKm,
		TrafficImpactPct:  (traffic - 1) * 100,
		WeatherImpactPct:  (weather - 1) * 100,
		Enrichment:        Enrichment{Status: EnrichmentDisabled},
	}, nil
}

// Estimate computes the local estimate and then tries to attach enrichment
// data. Only invalid input makes it fail; enrichment problems are reported in
// the Enrichment field.
func (e *Estimator) Estimate(ctx context.Context, req TripRequest) (TripEstimate, error) {
	ctx, span := tracing.StartSpan(ctx, "eco.estimate",
		trace.WithAttributes(
			attribute.String(tracing.AttrVehicleType, req.Vehicle.String()),
			attribute.Float64(tracing.AttrDistanceKm, req.DistanceKm),
			attribute.Float64(tracing.AttrTrafficDelay, req.TrafficDelaySeconds),
			attribute.String(tracing.AttrWeatherCondition, req.WeatherCondition),
		),
	)
	defer span.End()

	est, err := e.Compute(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TripEstimate{}, err
	}

	est.Enrichment = e.enrich(ctx, EnrichmentQuery{
		DistanceKm:          req.DistanceKm,
		VehicleType:         req.Vehicle,
		TrafficDelaySeconds: req.TrafficDelaySeconds,
		Weather:             req.WeatherCondition,
		FuelType:            est.FuelType,
	})

	span.SetAttributes(
		attribute.Float64(tracing.AttrFuelLitres, est.FuelConsumptionL),
		attribute.Float64(tracing.AttrCO2Kg, est.CO2EmissionsKg),
		attribute.String(tracing.AttrEnrichmentStatus, string(est.Enrichment.Status)),
	)
	span.SetStatus(codes.Ok, "")

	return est, nil
}

// WeatherEmissions returns CO2 in kg for a trip considering weather only,
// with no traffic penalty.
func (e *Estimator) WeatherEmissions(distanceKm float64, vehicle VehicleClass, condition string) (float64, error) {
	req := TripRequest{DistanceKm: distanceKm, Vehicle: vehicle, WeatherCondition: condition}
	if err := req.Validate(); err != nil {
		return 0, err
	}
	profile, err := vehicle.Profile()
	if err != nil {
		return 0, err
	}
	weather, _ := e.weather.Multiplier(condition)
	return distanceKm * profile.EmissionFactor * weather, nil
}
