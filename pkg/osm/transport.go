package osm

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/ecoroute/pkg/core"
	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

// rateLimitReportThreshold is the shortest limiter wait reported to OnRateLimit
const rateLimitReportThreshold = 100 * time.Millisecond

// MonitoringHooks observe requests made through the shared client. Any
// field may be nil.
type MonitoringHooks struct {
	OnRequest   func(service, operation string)
	OnResponse  func(service, operation string, duration time.Duration, success bool)
	OnRateLimit func(service string, waitTime time.Duration)
	OnError     func(service, errorType string)
}

func (h *MonitoringHooks) request(service, operation string) {
	if h != nil && h.OnRequest != nil {
		h.OnRequest(service, operation)
	}
}

func (h *MonitoringHooks) response(service, operation string, d time.Duration, success bool) {
	if h != nil && h.OnResponse != nil {
		h.OnResponse(service, operation, d, success)
	}
}

func (h *MonitoringHooks) rateLimited(service string, waited time.Duration) {
	if h != nil && h.OnRateLimit != nil {
		h.OnRateLimit(service, waited)
	}
}

func (h *MonitoringHooks) failed(service, errorType string) {
	if h != nil && h.OnError != nil {
		h.OnError(service, errorType)
	}
}

var hooks atomic.Pointer[MonitoringHooks]

// SetMonitoringHooks installs h for every later request; nil removes them
func SetMonitoringHooks(h *MonitoringHooks) {
	hooks.Store(h)
}

type operationKey struct{}

// WithOperation labels requests made with ctx for metrics
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey{}, operation)
}

func operationFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return "request"
}

// limitedTransport waits for the service's token bucket, sets the
// User-Agent and reports every exchange
type limitedTransport struct {
	base http.RoundTripper
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	service := services.serviceFor(req.URL.Host)
	operation := operationFrom(ctx)
	h := hooks.Load()

	h.request(service, operation)

	waited, err := services.wait(ctx, service)
	if err != nil {
		h.failed(service, "rate_limit_wait_error")
		return nil, err
	}
	if waited > rateLimitReportThreshold {
		h.rateLimited(service, waited)
	}

	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(ctx)
		req.Header.Set("User-Agent", GetUserAgent())
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	tracing.AddEvent(ctx, "external_request",
		trace.WithAttributes(tracing.ServiceAttributes(service, operation, core.RedactURL(req.URL), status)...))

	// an HTTP error status is still a completed exchange; only transport
	// failures count as errors
	h.response(service, operation, elapsed, err == nil && status < 400)
	if err != nil {
		h.failed(service, "request_error")
	}
	return resp, err
}
