// Package tracing provides OpenTelemetry tracing for ecoroute
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// ServiceName is the name of the service in traces
	ServiceName = "ecoroute"
	// TracerName is the name of the tracer
	TracerName = "github.com/NERVsystems/ecoroute"

	exportShutdownTimeout = 5 * time.Second
)

// Tracer is the tracer every package starts spans from. It is a no-op
// until Init or UseProvider replaces it.
var Tracer trace.Tracer = noop.NewTracerProvider().Tracer(TracerName)

// Options configures span export
type Options struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables export.
	Endpoint    string
	Insecure    bool
	SampleRatio float64
	Environment string
	Version     string
}

// Init installs an OTLP-exporting tracer provider. With no endpoint it
// leaves the no-op tracer in place and returns a no-op shutdown.
func Init(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	if opts.Endpoint == "" {
		UseProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(clientOpts...))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	res, err := newResource(opts)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(opts.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	UseProvider(tp)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, exportShutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// UseProvider points Tracer at tp. Tests use it with an in-memory recorder.
func UseProvider(tp trace.TracerProvider) {
	Tracer = tp.Tracer(TracerName)
}

func newResource(opts Options) (*resource.Resource, error) {
	env := opts.Environment
	if env == "" {
		env = "development"
	}
	res, err := resource.Merge(
		resource.Default(),
		// schemaless so the merge accepts whatever schema the SDK default uses
		resource.NewSchemaless(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(opts.Version),
			attribute.String("service.environment", env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	return res, nil
}

// sampler keeps the caller's decision for child spans and samples root
// spans at ratio. Out-of-range ratios sample everything.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio < 0 || ratio > 1 {
		ratio = 1
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// StartSpan starts a span on Tracer
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name, opts...)
}

func recording(ctx context.Context) (trace.Span, bool) {
	span := trace.SpanFromContext(ctx)
	return span, span.IsRecording()
}

// RecordError records err on the span in ctx, if any
func RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	if span, ok := recording(ctx); ok && err != nil {
		span.RecordError(err, opts...)
	}
}

// SetStatus sets the status of the span in ctx
func SetStatus(ctx context.Context, code codes.Code, description string) {
	if span, ok := recording(ctx); ok {
		span.SetStatus(code, description)
	}
}

// AddEvent adds an event to the span in ctx
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	if span, ok := recording(ctx); ok {
		span.AddEvent(name, opts...)
	}
}

// SetAttributes sets attributes on the span in ctx
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if span, ok := recording(ctx); ok {
		span.SetAttributes(attrs...)
	}
}
