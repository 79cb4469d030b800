// Package enrichment is the HTTP client for the carbon-footprint
// fuel-consumption API. It plugs into the estimator as an
// eco.EnrichmentSource.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/ecoroute/pkg/core"
	"github.com/NERVsystems/ecoroute/pkg/eco"
	"github.com/NERVsystems/ecoroute/pkg/osm"
	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

const (
	// EndpointPath is appended to the base URL
	EndpointPath = "/v1/fuel-consumption"

	defaultCacheSize = 256
	maxPayloadBytes  = 1 << 20
)

// Options configures the client
type Options struct {
	BaseURL      string
	APIKey       string
	CacheSize    int
	Client       *http.Client
	RetryOptions core.RetryOptions
	Logger       *slog.Logger
	OnCache      func(hit bool)
}

// DefaultOptions returns defaults for the public API. The HTTP client is the
// shared rate-limited client.
func DefaultOptions() Options {
	return Options{
		BaseURL:      osm.CarbonFootprintBaseURL,
		CacheSize:    defaultCacheSize,
		Client:       osm.GetClient(context.Background()),
		RetryOptions: core.DefaultRetryOptions,
		Logger:       slog.Default(),
	}
}

// Client posts trip queries to the fuel-consumption endpoint
type Client struct {
	opts  Options
	url   string
	cache *lru.Cache[eco.EnrichmentQuery, json.RawMessage]
}

// New creates a client. An API key is required.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, core.NewError(core.ErrMissingParameter, "enrichment API key is required").
			WithGuidance("Set ECOROUTE_FUEL_API_KEY to enable enrichment")
	}

	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = def.CacheSize
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
	opts.Logger = opts.Logger.With("service", tracing.ServiceEnrichment)

	cache, err := lru.New[eco.EnrichmentQuery, json.RawMessage](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating enrichment cache: %w", err)
	}

	osm.RegisterServiceURL(tracing.ServiceEnrichment, opts.BaseURL)

	return &Client{
		opts:  opts,
		url:   strings.TrimRight(opts.BaseURL, "/") + EndpointPath,
		cache: cache,
	}, nil
}

// Source returns an estimator source for opts, or nil when no API key is
// configured so that enrichment is reported as disabled.
func Source(opts Options) (eco.EnrichmentSource, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, nil
	}
	c, err := New(opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Enrich implements eco.EnrichmentSource. The response body is returned
// unchanged.
func (c *Client) Enrich(ctx context.Context, q eco.EnrichmentQuery) (json.RawMessage, error) {
	if payload, ok := c.cache.Get(q); ok {
		tracing.SetAttributes(ctx, tracing.CacheAttributes(tracing.CacheTypeEnrichment, true, string(q.VehicleType))...)
		if c.opts.OnCache != nil {
			c.opts.OnCache(true)
		}
		return clone(payload), nil
	}
	if c.opts.OnCache != nil {
		c.opts.OnCache(false)
	}

	body, err := json.Marshal(q)
	if err != nil {
		return nil, core.NewError(core.ErrInternalError, "failed to encode enrichment query")
	}

	ctx = osm.WithOperation(ctx, "fuel_consumption")
	ctx, span := tracing.StartSpan(ctx, "enrichment.fuel_consumption",
		trace.WithAttributes(
			attribute.String(tracing.AttrServiceName, tracing.ServiceEnrichment),
			attribute.String(tracing.AttrServiceOperation, "fuel_consumption"),
			attribute.String(tracing.AttrVehicleType, string(q.VehicleType)),
		),
	)
	defer span.End()

	factory := func() (*http.Request, error) {
		req, err := osm.NewRequestWithUserAgent(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
		return req, nil
	}

	resp, err := core.WithRetryFactory(ctx, factory, c.opts.Client, c.opts.RetryOptions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enrichment request failed")
		return nil, core.ServiceFailure(tracing.ServiceEnrichment, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		span.RecordError(err)
		return nil, core.ServiceFailure(tracing.ServiceEnrichment, err)
	}
	if len(payload) > maxPayloadBytes {
		span.SetStatus(codes.Error, "payload too large")
		return nil, core.NewError(core.ErrParseError, "enrichment response exceeds size limit")
	}
	if !json.Valid(payload) {
		span.SetStatus(codes.Error, "invalid json")
		return nil, core.NewError(core.ErrParseError, "enrichment response is not valid JSON")
	}

	c.cache.Add(q, payload)
	span.SetAttributes(attribute.Int("enrichment.payload_bytes", len(payload)))
	span.SetStatus(codes.Ok, "")
	c.opts.Logger.Debug("enrichment payload received", "bytes", len(payload))

	return clone(payload), nil
}

func clone(p json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), p...)
}
