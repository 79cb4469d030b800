package eco

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/ecoroute/pkg/tracing"
)

// EnrichmentSource supplies optional third-party data for a trip. The payload
// is opaque to the engine.
type EnrichmentSource interface {
	Enrich(ctx context.Context, q EnrichmentQuery) (json.RawMessage, error)
}

// EnrichmentSourceFunc adapts a function to EnrichmentSource
type EnrichmentSourceFunc func(ctx context.Context, q EnrichmentQuery) (json.RawMessage, error)

// Enrich calls f
func (f EnrichmentSourceFunc) Enrich(ctx context.Context, q EnrichmentQuery) (json.RawMessage, error) {
	return f(ctx, q)
}

// EnrichmentQuery is the request sent to an enrichment source
type EnrichmentQuery struct {
	DistanceKm          float64      `json:"distance"`
	VehicleType         VehicleClass `json:"vehicle_type"`
	TrafficDelaySeconds float64      `json:"traffic_delay"`
	Weather             string       `json:"weather"`
	FuelType            FuelCategory `json:"fuel_type"`
}

// EnrichmentStatus describes what happened to the enrichment step
type EnrichmentStatus string

const (
	// EnrichmentApplied means the payload was obtained
	EnrichmentApplied EnrichmentStatus = "applied"
	// EnrichmentUnavailable means the source failed, timed out or returned nothing
	EnrichmentUnavailable EnrichmentStatus = "unavailable"
	// EnrichmentDisabled means no source is configured
	EnrichmentDisabled EnrichmentStatus = "disabled"
)

// Enrichment is the outcome of the enrichment step
type Enrichment struct {
	Status  EnrichmentStatus `json:"status"`
	Payload json.RawMessage  `json:"payload,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

// Available reports whether a payload is attached
func (e Enrichment) Available() bool {
	return e.Status == EnrichmentApplied
}

// enrich never fails; every problem is folded into the outcome
func (e *Estimator) enrich(ctx context.Context, q EnrichmentQuery) Enrichment {
	if e.source == nil {
		return Enrichment{Status: EnrichmentDisabled}
	}

	ctx, span := tracing.StartSpan(ctx, "eco.enrich",
		trace.WithAttributes(attribute.String(tracing.AttrServiceName, tracing.ServiceEnrichment)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	payload, err := e.callSource(ctx, q)

	var result Enrichment
	switch {
	case err != nil:
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("enrichment timed out after %s", e.timeout)
		}
		result = Enrichment{Status: EnrichmentUnavailable, Reason: reason}
	case len(payload) == 0:
		result = Enrichment{Status: EnrichmentUnavailable, Reason: "empty payload"}
	case !json.Valid(payload):
		result = Enrichment{Status: EnrichmentUnavailable, Reason: "payload is not valid JSON"}
	default:
		result = Enrichment{Status: EnrichmentApplied, Payload: payload}
	}

	duration := time.Since(start)
	if result.Status != EnrichmentApplied {
		span.RecordError(errors.New(result.Reason))
		e.logger.Warn("enrichment unavailable, using local estimate",
			"vehicle_type", q.VehicleType,
			"reason", result.Reason,
			"duration", duration)
	}
	span.SetAttributes(attribute.String(tracing.AttrEnrichmentStatus, string(result.Status)))

	if e.hooks.OnEnrichment != nil {
		e.hooks.OnEnrichment(result.Status, duration)
	}

	return result
}

// callSource runs the source in its own goroutine so a source that ignores
// its context still cannot hold the caller past the deadline
func (e *Estimator) callSource(ctx context.Context, q EnrichmentQuery) (json.RawMessage, error) {
	type outcome struct {
		payload json.RawMessage
		err     error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("enrichment source panicked: %v", r)}
			}
		}()
		payload, err := e.source.Enrich(ctx, q)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
