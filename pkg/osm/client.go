// Package osm provides the shared outbound HTTP client and the Nominatim
// geocoder used by ecoroute's collaborators.
package osm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

// Public endpoints used when nothing else is configured
const (
	NominatimBaseURL       = "https://nominatim.openstreetmap.org"
	OSRMBaseURL            = "https://router.project-osrm.org"
	TomTomBaseURL          = "https://api.tomtom.com"
	OpenWeatherMapBaseURL  = "https://api.openweathermap.org"
	CarbonFootprintBaseURL = "https://api.carbon-footprint.com"
)

// DefaultUserAgent identifies ecoroute to public services
const DefaultUserAgent = "ecoroute/0.1.0"

// UnknownService labels requests to hosts nobody registered
const UnknownService = "unknown"

// directory maps request hosts to collaborator names and holds one token
// bucket per collaborator
type directory struct {
	mu       sync.RWMutex
	hosts    map[string]string
	limiters map[string]*rate.Limiter
}

var (
	services  = newDirectory()
	userAgent atomic.Pointer[string]

	sharedClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &limitedTransport{base: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}},
	}
)

func init() {
	SetUserAgent(DefaultUserAgent)
}

func newDirectory() *directory {
	d := &directory{
		hosts: make(map[string]string),
		// Nominatim's usage policy caps clients at one request per second
		limiters: map[string]*rate.Limiter{
			tracing.ServiceNominatim:  rate.NewLimiter(1, 1),
			tracing.ServiceOSRM:       rate.NewLimiter(1, 1),
			tracing.ServiceTomTom:     rate.NewLimiter(5, 5),
			tracing.ServiceWeather:    rate.NewLimiter(1, 1),
			tracing.ServiceEnrichment: rate.NewLimiter(2, 2),
		},
	}
	for name, base := range map[string]string{
		tracing.ServiceNominatim:  NominatimBaseURL,
		tracing.ServiceOSRM:       OSRMBaseURL,
		tracing.ServiceTomTom:     TomTomBaseURL,
		tracing.ServiceWeather:    OpenWeatherMapBaseURL,
		tracing.ServiceEnrichment: CarbonFootprintBaseURL,
	} {
		d.register(name, base)
	}
	return d
}

func (d *directory) register(name, baseURL string) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hosts[u.Host] = name
}

func (d *directory) serviceFor(host string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if name, ok := d.hosts[host]; ok {
		return name
	}
	return UnknownService
}

func (d *directory) setLimit(name string, rps float64, burst int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limiters[name] = rate.NewLimiter(rate.Limit(rps), burst)
}

// wait blocks until name may send another request and reports how long
// that took. Unlimited services never wait.
func (d *directory) wait(ctx context.Context, name string) (time.Duration, error) {
	d.mu.RLock()
	lim := d.limiters[name]
	d.mu.RUnlock()

	if lim == nil || lim.Allow() {
		return 0, nil
	}

	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(attribute.String(tracing.AttrRateLimitService, name)))
	start := time.Now()
	err := lim.Wait(ctx)
	waited := time.Since(start)
	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrRateLimitService, name),
		attribute.Int64(tracing.AttrRateLimitWaitMs, waited.Milliseconds()))
	return waited, err
}

// RegisterServiceURL routes requests to the host of baseURL through the
// limiter and metrics labels of service
func RegisterServiceURL(service, baseURL string) {
	services.register(service, baseURL)
}

// UpdateRateLimits replaces the token bucket of a service
func UpdateRateLimits(service string, rps float64, burst int) {
	services.setLimit(service, rps, burst)
}

// SetUserAgent sets the User-Agent sent on every outbound request
func SetUserAgent(ua string) {
	userAgent.Store(&ua)
}

// GetUserAgent returns the outbound User-Agent
func GetUserAgent() string {
	return *userAgent.Load()
}

// GetClient returns the shared client. Requests sent through it are rate
// limited per service and reported to the monitoring hooks.
func GetClient(ctx context.Context) *http.Client {
	return sharedClient
}

// NewRequestWithUserAgent builds a request carrying the outbound User-Agent
func NewRequestWithUserAgent(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", GetUserAgent())
	return req, nil
}

// CheckHealth issues a GET to a service status URL. Any answer below 500
// counts as reachable.
func CheckHealth(ctx context.Context, service, statusURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := NewRequestWithUserAgent(WithOperation(ctx, "health_check"), http.MethodGet, statusURL, nil)
	if err != nil {
		return fmt.Errorf("building %s health check: %w", service, err)
	}
	resp, err := sharedClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s health check failed: %w", service, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s health check returned status %d", service, resp.StatusCode)
	}
	return nil
}
