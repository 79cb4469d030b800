// Package weather fetches current conditions from OpenWeatherMap.
package weather

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
	"github.com/NERVsystems/ecoroute/pkg/core"
	"github.com/NERVsystems/ecoroute/pkg/geo"
	"github.com/NERVsystems/ecoroute/pkg/osm"
	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

const (
	// DefaultCacheTTL is how long a report is reused for the same area
	DefaultCacheTTL = 10 * time.Minute

	// UnknownCondition is reported when no live data could be obtained
	UnknownCondition = "Unknown"

	maxCachedReports = 500
)

// Report describes current weather at a location
type Report struct {
	Condition   string  `json:"condition"`
	Description string  `json:"description,omitempty"`
	TempC       float64 `json:"temp_c"`
	Live        bool    `json:"live"`
}

// Unknown returns the report used when weather could not be fetched
func Unknown() Report {
	return Report{Condition: UnknownCondition}
}

// Options configures the client
type Options struct {
	BaseURL      string
	APIKey       string
	CacheTTL     time.Duration
	Client       *http.Client
	RetryOptions core.RetryOptions
	Logger       *slog.Logger
	OnCache      func(hit bool)
}

// DefaultOptions returns defaults for the public API. The HTTP client is the
// shared rate-limited client.
func DefaultOptions() Options {
	return Options{
		BaseURL:      osm.OpenWeatherMapBaseURL,
		CacheTTL:     DefaultCacheTTL,
		Client:       osm.GetClient(context.Background()),
		RetryOptions: core.DefaultRetryOptions,
		Logger:       slog.Default(),
	}
}

type owmResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

// Client is an OpenWeatherMap current-weather client
type Client struct {
	opts  Options
	cache *cache.Cache[string, Report]
}

// NewClient creates a client. Zero-valued options are filled from the defaults.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
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
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	opts.Logger = opts.Logger.With("service", tracing.ServiceWeather)

	osm.RegisterServiceURL(tracing.ServiceWeather, opts.BaseURL)

	return &Client{
		opts:  opts,
		cache: cache.New[string, Report](tracing.CacheTypeWeather, maxCachedReports, opts.CacheTTL, opts.OnCache),
	}
}

// Close drops cached reports
func (c *Client) Close() {
	c.cache.Purge()
}

// cacheKey rounds to two decimals, about a kilometre
func cacheKey(loc geo.Location) string {
	return fmt.Sprintf("%.2f,%.2f", loc.Latitude, loc.Longitude)
}

// Current returns the current weather at loc. Callers that must not fail on
// weather should fall back to Unknown.
func (c *Client) Current(ctx context.Context, loc geo.Location) (Report, error) {
	if c.opts.APIKey == "" {
		return Report{}, core.NewError(core.ErrMissingParameter, "weather API key is not configured").
			WithGuidance("Set ECOROUTE_WEATHER_API_KEY to enable live weather")
	}
	if err := core.ValidateCoords(loc.Latitude, loc.Longitude); err != nil {
		return Report{}, err
	}

	key := cacheKey(loc)
	if r, ok := c.cache.Get(ctx, key); ok {
		return r, nil
	}

	ctx = osm.WithOperation(ctx, "current_weather")
	ctx, span := tracing.StartSpan(ctx, "openweathermap.current",
		trace.WithAttributes(
			attribute.String(tracing.AttrServiceName, tracing.ServiceWeather),
			attribute.String(tracing.AttrServiceOperation, "current_weather"),
		),
	)
	defer span.End()

	reqURL, err := url.Parse(strings.TrimRight(c.opts.BaseURL, "/") + "/data/2.5/weather")
	if err != nil {
		return Report{}, core.NewError(core.ErrInternalError, "invalid weather URL")
	}
	q := reqURL.Query()
	q.Set("lat", fmt.Sprintf("%.6f", loc.Latitude))
	q.Set("lon", fmt.Sprintf("%.6f", loc.Longitude))
	q.Set("units", "metric")
	q.Set("appid", c.opts.APIKey)
	reqURL.RawQuery = q.Encode()

	req, err := osm.NewRequestWithUserAgent(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return Report{}, core.NewError(core.ErrInternalError, "failed to create weather request")
	}

	resp, err := core.WithRetry(ctx, req, c.opts.Client, c.opts.RetryOptions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weather request failed")
		return Report{}, core.ServiceFailure(tracing.ServiceWeather, err)
	}
	defer resp.Body.Close()

	var body owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return Report{}, core.NewError(core.ErrParseError, "failed to parse weather response")
	}
	if len(body.Weather) == 0 || body.Weather[0].Main == "" {
		span.SetStatus(codes.Error, "no conditions")
		return Report{}, core.NewError(core.ErrNoResults, "weather response has no conditions")
	}

	report := Report{
		Condition:   body.Weather[0].Main,
		Description: body.Weather[0].Description,
		TempC:       body.Main.Temp,
		Live:        true,
	}
	c.cache.Add(key, report)

	span.SetAttributes(attribute.String(tracing.AttrWeatherCondition, report.Condition))
	span.SetStatus(codes.Ok, "")
	c.opts.Logger.Debug("fetched weather", "condition", report.Condition, "temp_c", report.TempC)

	return report, nil
}
