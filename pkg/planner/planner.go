// Package planner turns two place names into a routed, weather-aware trip
// estimate and eco score.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/NERVsystems/ecoroute/pkg/coords"
	"github.com/NERVsystems/ecoroute/pkg/core"
	"github.com/NERVsystems/ecoroute/pkg/eco"
	"github.com/NERVsystems/ecoroute/pkg/geo"
	"github.com/NERVsystems/ecoroute/pkg/osm"
	"github.com/NERVsystems/ecoroute/pkg/tracing"
	"github.com/NERVsystems/ecoroute/pkg/weather"
)

// Geocoder resolves an address to a place
type Geocoder interface {
	Geocode(ctx context.Context, address string) (osm.Place, error)
}

// Router computes a route between two points
type Router interface {
	Name() string
	Route(ctx context.Context, from, to geo.Location) (*core.RouteSummary, error)
}

// WeatherSource reports current weather at a point
type WeatherSource interface {
	Current(ctx context.Context, loc geo.Location) (weather.Report, error)
}

// PlanRequest names the trip endpoints and vehicle
type PlanRequest struct {
	From    string           `json:"from"`
	To      string           `json:"to"`
	Vehicle eco.VehicleClass `json:"vehicle_type"`
}

// PlanResult is a routed trip with its estimate and score
type PlanResult struct {
	Origin              osm.Place         `json:"origin"`
	Destination         osm.Place         `json:"destination"`
	Route               core.RouteSummary `json:"route"`
	Points              []geo.Location    `json:"points,omitempty"`
	DistanceKm          float64           `json:"distance_km"`
	StraightLineKm      float64           `json:"straight_line_km"`
	DurationMinutes     float64           `json:"duration_minutes"`
	TrafficDelayMinutes float64           `json:"traffic_delay_minutes"`
	Weather             weather.Report    `json:"weather"`
	Estimate            eco.TripEstimate  `json:"estimate"`
	Score               eco.EcoScore      `json:"eco_score"`
}

// Options wires the planner's collaborators. Weather may be nil.
type Options struct {
	Geocoder  Geocoder
	Router    Router
	Weather   WeatherSource
	Estimator *eco.Estimator
	Logger    *slog.Logger

	// OnWeatherFallback is called when live weather could not be used
	OnWeatherFallback func(err error)
}

// Planner plans trips. It is safe for concurrent use if its collaborators are.
type Planner struct {
	opts Options
}

// New creates a planner. Geocoder, Router and Estimator are required.
func New(opts Options) (*Planner, error) {
	if opts.Geocoder == nil || opts.Router == nil || opts.Estimator == nil {
		return nil, fmt.Errorf("planner requires a geocoder, a router and an estimator")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = opts.Logger.With("component", "planner")
	return &Planner{opts: opts}, nil
}

// Plan geocodes both ends, fetches the route and destination weather
// concurrently, then estimates and scores the trip.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	from := strings.TrimSpace(req.From)
	to := strings.TrimSpace(req.To)
	if from == "" || to == "" {
		return nil, core.NewValidationError(core.ErrEmptyParameter, "origin and destination must not be empty")
	}
	if _, err := req.Vehicle.Profile(); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "planner.plan",
		trace.WithAttributes(
			attribute.String(tracing.AttrVehicleType, string(req.Vehicle)),
			attribute.String("planner.router", p.opts.Router.Name()),
		),
	)
	defer span.End()

	origin, err := p.resolve(ctx, from)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "origin geocoding failed")
		return nil, err
	}
	destination, err := p.resolve(ctx, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "destination geocoding failed")
		return nil, err
	}

	var (
		route  *core.RouteSummary
		report weather.Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := p.opts.Router.Route(gctx, origin.Location, destination.Location)
		if err != nil {
			return err
		}
		route = r
		return nil
	})
	g.Go(func() error {
		report = p.currentWeather(gctx, destination.Location)
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "routing failed")
		return nil, err
	}

	est, err := p.opts.Estimator.Estimate(ctx, eco.TripRequest{
		DistanceKm:          route.DistanceKm(),
		Vehicle:             req.Vehicle,
		TrafficDelaySeconds: route.TrafficDelaySeconds,
		WeatherCondition:    report.Condition,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "estimation failed")
		return nil, err
	}

	var points []geo.Location
	if route.Polyline != "" {
		points, err = core.DecodePolyline(route.Polyline)
		if err != nil {
			p.opts.Logger.Warn("discarding undecodable route geometry", "provider", route.Provider, "error", err)
			points = nil
		}
	}

	straightLine := geo.HaversineDistance(
		origin.Location.Latitude, origin.Location.Longitude,
		destination.Location.Latitude, destination.Location.Longitude)

	result := &PlanResult{
		Origin:              origin,
		Destination:         destination,
		Route:               *route,
		Points:              points,
		DistanceKm:          route.DistanceKm(),
		StraightLineKm:      straightLine / 1000,
		DurationMinutes:     route.DurationMinutes(),
		TrafficDelayMinutes: route.TrafficDelaySeconds / 60,
		Weather:             report,
		Estimate:            est,
		Score:               est.EcoScore(),
	}

	span.SetAttributes(attribute.Int(tracing.AttrEcoScore, result.Score.Value))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// resolve turns an endpoint into a place. Coordinates in any notation that
// coords understands are used as given; anything else is geocoded.
func (p *Planner) resolve(ctx context.Context, endpoint string) (osm.Place, error) {
	loc, format, err := coords.Parse(endpoint)
	switch {
	case err == nil:
		tracing.AddEvent(ctx, "coordinate_endpoint",
			trace.WithAttributes(attribute.String("coords.format", string(format))))
		return osm.Place{Name: endpoint, Location: loc}, nil
	case errors.Is(err, coords.ErrNotCoordinate):
		return p.opts.Geocoder.Geocode(ctx, endpoint)
	default:
		return osm.Place{}, core.NewValidationError(core.ErrInvalidInput, err.Error()).
			WithGuidance("Check the coordinate or pass an address instead")
	}
}

// currentWeather never fails; missing data becomes an unknown condition
func (p *Planner) currentWeather(ctx context.Context, loc geo.Location) weather.Report {
	if p.opts.Weather == nil {
		return weather.Unknown()
	}
	report, err := p.opts.Weather.Current(ctx, loc)
	if err != nil {
		p.opts.Logger.Warn("weather unavailable, assuming neutral conditions", "error", err)
		tracing.AddEvent(ctx, "weather_fallback")
		if p.opts.OnWeatherFallback != nil {
			p.opts.OnWeatherFallback(err)
		}
		return weather.Unknown()
	}
	return report
}
