package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/ecoroute/pkg/cache"
	"github.com/NERVsystems/ecoroute/pkg/core"
	"github.com/NERVsystems/ecoroute/pkg/geo"
	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

const (
	defaultGeocodeCacheTTL  = 24 * time.Hour
	defaultGeocodeCacheSize = 1000
)

// Place is a geocoded address
type Place struct {
	Name     string       `json:"name"`
	Location geo.Location `json:"location"`
}

// nominatimResult is a single entry of a Nominatim search response
type nominatimResult struct {
	PlaceID     int64  `json:"place_id"`
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// GeocoderOptions configures a Geocoder
type GeocoderOptions struct {
	BaseURL      string
	Client       *http.Client
	CacheTTL     time.Duration
	CacheSize    int
	RetryOptions core.RetryOptions
	Logger       *slog.Logger
	OnCache      func(hit bool)
}

// DefaultGeocoderOptions returns options for the public Nominatim instance
func DefaultGeocoderOptions() GeocoderOptions {
	return GeocoderOptions{
		BaseURL:      NominatimBaseURL,
		Client:       sharedClient,
		CacheTTL:     defaultGeocodeCacheTTL,
		CacheSize:    defaultGeocodeCacheSize,
		RetryOptions: core.DefaultRetryOptions,
		Logger:       slog.Default(),
	}
}

// Geocoder resolves free-form addresses with Nominatim
type Geocoder struct {
	opts  GeocoderOptions
	cache *cache.Cache[string, Place]
}

// NewGeocoder creates a geocoder. Zero-valued options are filled from the defaults.
func NewGeocoder(opts GeocoderOptions) *Geocoder {
	def := DefaultGeocoderOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.Client == nil {
		opts.Client = def.Client
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = def.CacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = def.CacheSize
	}
	if opts.RetryOptions.MaxAttempts <= 0 {
		opts.RetryOptions = def.RetryOptions
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	opts.Logger = opts.Logger.With("service", tracing.ServiceNominatim)

	RegisterServiceURL(tracing.ServiceNominatim, opts.BaseURL)

	return &Geocoder{
		opts:  opts,
		cache: cache.New[string, Place](tracing.CacheTypeGeocode, opts.CacheSize, opts.CacheTTL, opts.OnCache),
	}
}

// Geocode returns the best match for address
func (g *Geocoder) Geocode(ctx context.Context, address string) (Place, error) {
	query := strings.TrimSpace(address)
	if query == "" {
		return Place{}, core.NewValidationError(core.ErrEmptyParameter, "address must not be empty")
	}

	key := strings.ToLower(query)
	if place, ok := g.cache.Get(ctx, key); ok {
		g.opts.Logger.Debug("geocode cache hit", "query", query)
		return place, nil
	}

	ctx = WithOperation(ctx, "geocode")
	ctx, span := tracing.StartSpan(ctx, "nominatim.geocode",
		trace.WithAttributes(
			attribute.String(tracing.AttrServiceName, tracing.ServiceNominatim),
			attribute.String(tracing.AttrServiceOperation, "geocode"),
		),
	)
	defer span.End()

	reqURL, err := url.Parse(strings.TrimRight(g.opts.BaseURL, "/") + "/search")
	if err != nil {
		span.RecordError(err)
		return Place{}, core.NewError(core.ErrInternalError, "invalid geocoder URL")
	}
	q := reqURL.Query()
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("q", query)
	reqURL.RawQuery = q.Encode()

	req, err := NewRequestWithUserAgent(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		span.RecordError(err)
		return Place{}, core.NewError(core.ErrInternalError, "failed to create geocode request")
	}

	resp, err := core.WithRetry(ctx, req, g.opts.Client, g.opts.RetryOptions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "geocode request failed")
		return Place{}, core.ServiceFailure(tracing.ServiceNominatim, err)
	}
	defer resp.Body.Close()

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return Place{}, core.NewError(core.ErrParseError, "failed to parse geocoding response")
	}

	if len(results) == 0 {
		span.SetStatus(codes.Error, "no results")
		return Place{}, core.NewError(core.ErrNoResults, fmt.Sprintf("no location found for %q", query)).
			WithQuery(query).
			WithGuidance("Try a more specific address including the city or country")
	}

	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLon != nil {
		span.SetStatus(codes.Error, "invalid coordinates")
		return Place{}, core.NewError(core.ErrParseError, "geocoding response has invalid coordinates")
	}
	if err := core.ValidateCoords(lat, lon); err != nil {
		return Place{}, core.NewError(core.ErrParseError, err.Error())
	}

	place := Place{
		Name:     results[0].DisplayName,
		Location: geo.Location{Latitude: lat, Longitude: lon},
	}
	g.cache.Add(key, place)
	span.SetStatus(codes.Ok, "")

	return place, nil
}

// Close drops cached places
func (g *Geocoder) Close() {
	g.cache.Purge()
}
