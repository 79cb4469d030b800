package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

// RetryOptions configures retry behavior for HTTP requests
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions is used by every collaborator unless overridden
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
}

// DefaultClient is used when a collaborator is built without a client
var DefaultClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// secretParams are query parameters that carry API keys
var secretParams = []string{"key", "appid", "api_key", "apikey", "token"}

// RedactURL renders u with API key query parameters masked
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	redacted := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			redacted = true
		}
	}
	if !redacted {
		return u.String()
	}
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}

// RequestFactory builds a fresh request for each attempt, so requests with
// bodies can be replayed
type RequestFactory func() (*http.Request, error)

// WithRetry sends req with retries. A request body is replayed through
// req.GetBody; a body without GetBody cannot be retried and is rejected.
func WithRetry(ctx context.Context, req *http.Request, client *http.Client, options RetryOptions) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, NewError(ErrInternalError, "cannot retry request with a one-shot body").
			WithGuidance("Use WithRetryFactory for requests with streaming bodies")
	}
	return WithRetryFactory(ctx, func() (*http.Request, error) {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = body
		}
		return r, nil
	}, client, options)
}

// WithRetryFactory sends requests built by factory until one answers 200.
//
// Network errors, 408, 429 and 5xx answers are retried with exponential
// backoff; a Retry-After header on a 429 or 503 replaces the computed delay
// (capped at MaxDelay). Any other status fails immediately.
func WithRetryFactory(ctx context.Context, factory RequestFactory, client *http.Client, options RetryOptions) (*http.Response, error) {
	if client == nil {
		client = DefaultClient
	}
	if options.MaxAttempts < 1 {
		options.MaxAttempts = 1
	}

	ctx, span := tracing.StartSpan(ctx, "http.request",
		trace.WithAttributes(attribute.Int("http.retry.max_attempts", options.MaxAttempts)))
	defer span.End()

	logger := slog.Default()
	delay := options.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= options.MaxAttempts; attempt++ {
		req, err := factory()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "request construction failed")
			return nil, NewError(ErrInternalError, fmt.Sprintf("failed to create request: %v", err))
		}
		req = req.WithContext(ctx)
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}
		if attempt == 1 {
			span.SetName("http.request " + req.Method + " " + req.URL.Host)
			span.SetAttributes(
				attribute.String(tracing.AttrHTTPMethod, req.Method),
				attribute.String("http.url", RedactURL(req.URL)),
				attribute.String("http.host", req.URL.Host),
			)
			logger = logger.With("method", req.Method, "url", RedactURL(req.URL))
		}

		resp, err := client.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			span.SetAttributes(
				attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode),
				attribute.Int("http.retry.attempts", attempt),
			)
			span.SetStatus(codes.Ok, "")
			logger.Debug("request successful", "attempt", attempt, "content_length", resp.ContentLength)
			return resp, nil
		}

		wait := delay
		if err != nil {
			lastErr = err
			logger.Warn("request failed", "attempt", attempt, "error", err)
			if ctx.Err() != nil {
				break
			}
		} else {
			lastErr = ServiceError("HTTP", resp.StatusCode, fmt.Sprintf("HTTP status %d", resp.StatusCode))
			if after, ok := retryAfter(resp, options.MaxDelay); ok {
				wait = after
			}
			drain(resp)
			logger.Warn("request returned error status", "attempt", attempt, "status", resp.StatusCode)
			if !retryableStatus(resp.StatusCode) {
				span.SetAttributes(attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode))
				break
			}
		}

		if attempt == options.MaxAttempts {
			break
		}

		tracing.AddEvent(ctx, "retry_attempt", trace.WithAttributes(
			attribute.Int("attempt", attempt+1),
			attribute.Int64("delay_ms", wait.Milliseconds()),
			attribute.String("error", lastErr.Error()),
		))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			span.SetStatus(codes.Error, "request cancelled")
			return nil, ServiceFailure("HTTP", ctx.Err())
		}

		delay = time.Duration(float64(delay) * options.Multiplier)
		if delay > options.MaxDelay {
			delay = options.MaxDelay
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "request failed")

	mcpErr := ServiceFailure("HTTP", lastErr)
	if options.MaxAttempts > 1 {
		return nil, mcpErr.WithGuidance("Maximum retry attempts reached. " + mcpErr.Guidance)
	}
	return nil, mcpErr
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError
}

// retryAfter reads a delay-seconds Retry-After header
func retryAfter(resp *http.Response, limit time.Duration) (time.Duration, bool) {
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return 0, false
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if d > limit {
		d = limit
	}
	return d, true
}

// drain discards a small remainder of the body so the connection can be reused
func drain(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
	_ = resp.Body.Close()
}
