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
	defaultTomTomBaseURL = "https://api.tomtom.com"

	// Traffic changes quickly; keep routes only briefly
	defaultTrafficRouteCacheTTL = 5 * time.Minute
)

// TomTomOptions configures the TomTom routing client
type TomTomOptions struct {
	BaseURL      string
	APIKey       string
	TravelMode   string
	CacheSize    int
	CacheTTL     time.Duration
	Client       *http.Client
	RetryOptions RetryOptions
	OnCache      func(hit bool)
}

// DefaultTomTomOptions returns defaults for the public TomTom API
func DefaultTomTomOptions() TomTomOptions {
	return TomTomOptions{
		BaseURL:      defaultTomTomBaseURL,
		TravelMode:   "car",
		CacheSize:    defaultRouteCacheSize,
		CacheTTL:     defaultTrafficRouteCacheTTL,
		Client:       &http.Client{Timeout: 15 * time.Second},
		RetryOptions: DefaultRetryOptions,
	}
}

type tomTomPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type tomTomResponse struct {
	Routes []struct {
		Summary struct {
			LengthInMeters        float64 `json:"lengthInMeters"`
			TravelTimeInSeconds   float64 `json:"travelTimeInSeconds"`
			TrafficDelayInSeconds float64 `json:"trafficDelayInSeconds"`
		} `json:"summary"`
		Legs []struct {
			Points []tomTomPoint `json:"points"`
		} `json:"legs"`
	} `json:"routes"`
	DetailedError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"detailedError,omitempty"`
}

// TomTomRouter fetches traffic-aware routes from the TomTom Routing API
type TomTomRouter struct {
	opts   TomTomOptions
	cache  *cache.Cache[string, *RouteSummary]
	logger *slog.Logger
}

// NewTomTomRouter creates a TomTom router. An API key is required.
func NewTomTomRouter(opts TomTomOptions) (*TomTomRouter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, NewError(ErrMissingParameter, "TomTom API key is required").
			WithGuidance("Set ECOROUTE_TOMTOM_API_KEY or use the OSRM router")
	}

	def := DefaultTomTomOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.TravelMode == "" {
		opts.TravelMode = def.TravelMode
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

	return &TomTomRouter{
		opts:   opts,
		cache:  cache.New[string, *RouteSummary](tracing.CacheTypeRoute, opts.CacheSize, opts.CacheTTL, opts.OnCache),
		logger: slog.Default().With("service", tracing.ServiceTomTom),
	}, nil
}

// Name returns the provider name
func (r *TomTomRouter) Name() string {
	return tracing.ServiceTomTom
}

// Route fetches the fastest route with live traffic
func (r *TomTomRouter) Route(ctx context.Context, from, to geo.Location) (*RouteSummary, error) {
	key := routeKey(from, to, r.opts.TravelMode)
	if cached, found := r.cache.Get(ctx, key); found {
		r.logger.Debug("route cache hit", "key", key)
		copied := *cached
		return &copied, nil
	}

	ctx, span := tracing.StartSpan(ctx, "tomtom.route",
		trace.WithAttributes(
			attribute.String(tracing.AttrServiceName, tracing.ServiceTomTom),
			attribute.String(tracing.AttrServiceOperation, "calculateRoute"),
		),
	)
	defer span.End()

	reqURL, err := url.Parse(fmt.Sprintf("%s/routing/1/calculateRoute/%.6f,%.6f:%.6f,%.6f/json",
		strings.TrimRight(r.opts.BaseURL, "/"),
		from.Latitude, from.Longitude,
		to.Latitude, to.Longitude))
	if err != nil {
		return nil, NewError(ErrInternalError, "invalid TomTom URL")
	}

	query := reqURL.Query()
	query.Set("key", r.opts.APIKey)
	query.Set("traffic", "true")
	query.Set("travelMode", r.opts.TravelMode)
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, NewError(ErrInternalError, "failed to create TomTom request")
	}

	resp, err := WithRetry(ctx, req, r.opts.Client, r.opts.RetryOptions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "route request failed")
		return nil, ServiceFailure(tracing.ServiceTomTom, err)
	}
	defer resp.Body.Close()

	var result tomTomResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		span.RecordError(err)
		return nil, NewError(ErrParseError, "failed to parse TomTom response")
	}

	if result.DetailedError != nil {
		span.SetStatus(codes.Error, result.DetailedError.Code)
		return nil, NewError(ErrNoResults, fmt.Sprintf("TomTom error: %s %s",
			result.DetailedError.Code, result.DetailedError.Message))
	}
	if len(result.Routes) == 0 {
		return nil, NewError(ErrNoResults, "no routes found")
	}

	best := result.Routes[0]
	var points []geo.Location
	for _, leg := range best.Legs {
		for _, p := range leg.Points {
			points = append(points, geo.Location{Latitude: p.Latitude, Longitude: p.Longitude})
		}
	}

	summary := &RouteSummary{
		Provider:            tracing.ServiceTomTom,
		DistanceMeters:      best.Summary.LengthInMeters,
		DurationSeconds:     best.Summary.TravelTimeInSeconds,
		TrafficDelaySeconds: best.Summary.TrafficDelayInSeconds,
		Polyline:            EncodePolyline(points),
	}

	span.SetAttributes(
		attribute.Float64("route.distance_m", summary.DistanceMeters),
		attribute.Float64("route.traffic_delay_s", summary.TrafficDelaySeconds),
	)
	span.SetStatus(codes.Ok, "")

	r.cache.Add(key, summary)
	copied := *summary
	return &copied, nil
}
