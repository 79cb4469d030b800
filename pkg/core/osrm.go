package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/ecoroute/pkg/cache"
	"github.com/NERVsystems/ecoroute/pkg/geo"
	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

const (
	// Default OSRM service base URL
	defaultOSRMBaseURL = "https://router.project-osrm.org"

	// Default cache size for route results
	defaultRouteCacheSize = 256

	// OSRM has no live traffic so routes can be kept for a long time
	defaultRouteCacheTTL = 24 * time.Hour
)

// OSRMOptions defines options for OSRM route requests
type OSRMOptions struct {
	// Base URL for the OSRM service
	BaseURL string

	// Profile to use (car, bike, foot)
	Profile string

	// Overview determines the geometry precision
	// "simplified", "full", "false"
	Overview string

	// CacheSize is the number of routes kept in the LRU cache
	CacheSize int

	// CacheTTL bounds how long a cached route is served
	CacheTTL time.Duration

	// Client is the HTTP client to use for requests
	Client *http.Client

	// RetryOptions controls retry behavior
	RetryOptions RetryOptions

	// OnCache is called with true on a cache hit and false on a miss
	OnCache func(hit bool)
}

// DefaultOSRMOptions returns reasonable defaults for OSRM requests
func DefaultOSRMOptions() OSRMOptions {
	return OSRMOptions{
		BaseURL:      defaultOSRMBaseURL,
		Profile:      "car",
		Overview:     "simplified",
		CacheSize:    defaultRouteCacheSize,
		CacheTTL:     defaultRouteCacheTTL,
		Client:       &http.Client{Timeout: 10 * time.Second},
		RetryOptions: DefaultRetryOptions,
	}
}

// OSRMRoute represents a route returned by the OSRM service
type OSRMRoute struct {
	Duration float64   `json:"duration"` // Duration in seconds
	Distance float64   `json:"distance"` // Distance in meters
	Geometry string    `json:"geometry"` // Encoded polyline
	Legs     []OSRMLeg `json:"legs"`     // Route legs between waypoints
}

// OSRMLeg represents a leg of a route between two waypoints
type OSRMLeg struct {
	Duration float64 `json:"duration"`
	Distance float64 `json:"distance"`
	Summary  string  `json:"summary"`
}

// OSRMResult represents the complete response from the OSRM service
type OSRMResult struct {
	Code    string      `json:"code"`    // Status code
	Message string      `json:"message"` // Error message if applicable
	Routes  []OSRMRoute `json:"routes"`  // Array of routes
}

// OSRMRouter fetches driving routes from an OSRM instance. OSRM does not
// model traffic, so the reported delay is always zero.
type OSRMRouter struct {
	opts   OSRMOptions
	cache  *cache.Cache[string, *RouteSummary]
	logger *slog.Logger
}

// NewOSRMRouter creates an OSRM router. Zero-valued options are filled from the defaults.
func NewOSRMRouter(opts OSRMOptions) *OSRMRouter {
	def := DefaultOSRMOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.Profile == "" {
		opts.Profile = def.Profile
	}
	if opts.Overview == "" {
		opts.Overview = def.Overview
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = def.CacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = def.CacheTTL
	}
	if opts.Client == nil {
		opts.Client = def.Client
	}
	if opts.RetryOptions.MaxAttempts <= 0 {
		opts.RetryOptions = def.RetryOptions
	}

	return &OSRMRouter{
		opts:   opts,
		cache:  cache.New[string, *RouteSummary](tracing.CacheTypeRoute, opts.CacheSize, opts.CacheTTL, opts.OnCache),
		logger: slog.Default().With("service", tracing.ServiceOSRM),
	}
}

// Name returns the provider name
func (r *OSRMRouter) Name() string {
	return tracing.ServiceOSRM
}

// Route fetches the best route between two points
func (r *OSRMRouter) Route(ctx context.Context, from, to geo.Location) (*RouteSummary, error) {
	key := routeKey(from, to, r.opts.Profile+";"+r.opts.Overview)

	if cached, found := r.cache.Get(ctx, key); found {
		r.logger.Debug("route cache hit", "key", key)
		copied := *cached
		return &copied, nil
	}

	ctx, span := tracing.StartSpan(ctx, "osrm.route",
		trace.WithAttributes(
			attribute.String(tracing.AttrServiceName, tracing.ServiceOSRM),
			attribute.String(tracing.AttrServiceOperation, "route"),
		),
	)
	defer span.End()

	// OSRM expects coordinates as longitude,latitude
	reqURL, err := url.Parse(fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f",
		strings.TrimRight(r.opts.BaseURL, "/"),
		r.opts.Profile,
		from.Longitude, from.Latitude,
		to.Longitude, to.Latitude))
	if err != nil {
		return nil, NewError(ErrInternalError, "invalid OSRM URL")
	}

	query := reqURL.Query()
	query.Add("overview", r.opts.Overview)
	query.Add("steps", "false")
	query.Add("geometries", "polyline")
	query.Add("alternatives", "false")
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, NewError(ErrInternalError, "failed to create OSRM request")
	}

	resp, err := WithRetry(ctx, req, r.opts.Client, r.opts.RetryOptions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "route request failed")
		return nil, ServiceFailure(tracing.ServiceOSRM, err)
	}
	defer resp.Body.Close()

	result := &OSRMResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		span.RecordError(err)
		return nil, NewError(ErrParseError, "failed to parse OSRM response")
	}

	if result.Code != "Ok" {
		span.SetStatus(codes.Error, result.Code)
		return nil, NewError(ErrNoResults, fmt.Sprintf("OSRM error: %s %s", result.Code, result.Message)).
			WithGuidance("Check that both points are reachable by road")
	}
	if len(result.Routes) == 0 {
		return nil, NewError(ErrNoResults, "no routes found")
	}

	best := result.Routes[0]
	summary := &RouteSummary{
		Provider:        tracing.ServiceOSRM,
		DistanceMeters:  best.Distance,
		DurationSeconds: best.Duration,
		Polyline:        best.Geometry,
	}
	if len(best.Legs) > 0 {
		summary.Summary = best.Legs[0].Summary
	}

	span.SetAttributes(attribute.Float64("route.distance_m", summary.DistanceMeters))
	span.SetStatus(codes.Ok, "")

	r.cache.Add(key, summary)
	copied := *summary
	return &copied, nil
}
