package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

func TestTracingMiddleware(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracing.UseProvider(tp)
	t.Cleanup(func() { tracing.UseProvider(noop.NewTracerProvider()) })

	tests := []struct {
		method, path string
		status       int
		wantErr      bool
	}{
		{http.MethodGet, "/health", http.StatusOK, false},
		{http.MethodPost, "/estimate", http.StatusBadRequest, false},
		{http.MethodPost, "/plan", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		handler := TracingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !trace.SpanFromContext(r.Context()).SpanContext().IsValid() {
				t.Error("handler context carries no span")
			}
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))
	}

	ended := sr.Ended()
	if len(ended) != len(tests) {
		t.Fatalf("ended spans = %d, want %d", len(ended), len(tests))
	}
	for i, tt := range tests {
		span := ended[i]
		if want := tt.method + " " + tt.path; span.Name() != want {
			t.Errorf("span name = %q, want %q", span.Name(), want)
		}
		if span.SpanKind() != trace.SpanKindServer {
			t.Errorf("%s: kind = %v", tt.path, span.SpanKind())
		}
		var status int64
		for _, kv := range span.Attributes() {
			if string(kv.Key) == tracing.AttrHTTPStatusCode {
				status = kv.Value.AsInt64()
			}
		}
		if status != int64(tt.status) {
			t.Errorf("%s: status attribute = %d", tt.path, status)
		}
		if (span.Status().Code == codes.Error) != tt.wantErr {
			t.Errorf("%s: span status = %v", tt.path, span.Status())
		}
	}
}

func TestLoggingMiddlewareLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusBadGateway} {
		buf.Reset()
		handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`{}`))
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ready", nil))

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q", buf.String())
		}
		want := "INFO"
		switch {
		case status >= 500:
			want = "ERROR"
		case status >= 400:
			want = "WARN"
		}
		if entry["level"] != want || entry["status"] != float64(status) || entry["bytes"] != float64(2) {
			t.Errorf("status %d logged as %v", status, entry)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	handler := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	for body, want := range map[string]int{
		"small":                  http.StatusNoContent,
		"this body is too large": http.StatusRequestEntityTooLarge,
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/estimate", strings.NewReader(body)))
		if rec.Code != want {
			t.Errorf("%q: status = %d, want %d", body, rec.Code, want)
		}
	}
}

func TestLoggingMiddlewareRequestID(t *testing.T) {
	var seen string
	handler := LoggingMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("propagates client id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set(RequestIDHeader, "client-abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen != "client-abc" || rec.Header().Get(RequestIDHeader) != "client-abc" {
			t.Errorf("request id = %q header = %q", seen, rec.Header().Get(RequestIDHeader))
		}
	})

	t.Run("generates when missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
			t.Errorf("request id = %q header = %q", seen, rec.Header().Get(RequestIDHeader))
		}
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("a", 100))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if len(seen) > 64 {
			t.Errorf("oversized request id was kept: %d chars", len(seen))
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("disabled without token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		AuthMiddleware("", testLogger())(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d", rec.Code)
		}
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer expected-token", http.StatusNoContent},
	}

	handler := AuthMiddleware("expected-token", testLogger())(ok)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if got := strings.Join(order, ","); got != "first,second,handler" {
		t.Errorf("order = %s", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}
