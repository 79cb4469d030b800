package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ServiceName labels health reports and the metric namespace
const ServiceName = "ecoroute"

// maxConditionLabelLen caps unknown weather labels; conditions come from
// callers and would otherwise create unbounded series
const maxConditionLabelLen = 32

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Requests served, both MCP tools and HTTP endpoints
var (
	ToolRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ServiceName,
		Subsystem: "tool",
		Name:      "requests_total",
		Help:      "Tool requests by tool and outcome.",
	}, []string{"tool", "status"})

	ToolRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ServiceName,
		Subsystem: "tool",
		Name:      "request_duration_seconds",
		Help:      "Tool request latency.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12),
	}, []string{"tool"})
)

// Collaborator traffic through the shared client
var (
	ExternalRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ServiceName,
		Subsystem: "external",
		Name:      "requests_total",
		Help:      "Collaborator requests by service, operation and outcome.",
	}, []string{"service", "operation", "status"})

	ExternalRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ServiceName,
		Subsystem: "external",
		Name:      "request_duration_seconds",
		Help:      "Collaborator request latency.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"service", "operation"})

	ExternalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ServiceName,
		Subsystem: "external",
		Name:      "errors_total",
		Help:      "Collaborator transport failures by service and kind.",
	}, []string{"service", "error_type"})

	RateLimitWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ServiceName,
		Subsystem: "external",
		Name:      "rate_limit_wait_seconds",
		Help:      "Time spent waiting for a collaborator's token bucket.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"service"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ServiceName,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Response cache lookups by cache and result.",
	}, []string{"cache", "result"})
)

// Estimation outcomes
var (
	EnrichmentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ServiceName,
		Subsystem: "enrichment",
		Name:      "outcomes_total",
		Help:      "Enrichment attempts by outcome.",
	}, []string{"status"})

	EnrichmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: ServiceName,
		Subsystem: "enrichment",
		Name:      "duration_seconds",
		Help:      "Time spent waiting for enrichment.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	EnrichmentFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ServiceName,
		Subsystem: "enrichment",
		Name:      "fallbacks_total",
		Help:      "Estimates returned without enrichment because the source failed.",
	})

	UnknownWeatherConditions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: ServiceName,
		Name:      "unknown_weather_conditions_total",
		Help:      "Weather conditions missing from the impact table.",
	}, []string{"condition"})

	WeatherFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: ServiceName,
		Subsystem: "weather",
		Name:      "fallbacks_total",
		Help:      "Trip plans that used neutral weather because live weather failed.",
	})

	EcoScores = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ServiceName,
		Name:      "eco_score",
		Help:      "Reported eco scores by vehicle type.",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	}, []string{"vehicle_type"})
)

// BuildInfo is always 1; the labels carry the build
var BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: ServiceName,
	Name:      "build_info",
	Help:      "Build information.",
}, []string{"version", "go_version", "commit", "build_date"})

// RecordToolRequest counts one tool call
func RecordToolRequest(tool string, duration time.Duration, success bool) {
	ToolRequestsTotal.WithLabelValues(tool, outcome(success)).Inc()
	ToolRequestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordExternalServiceRequest counts one completed collaborator exchange
func RecordExternalServiceRequest(service, operation string, duration time.Duration, success bool) {
	ExternalRequestsTotal.WithLabelValues(service, operation, outcome(success)).Inc()
	ExternalRequestDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordError counts a collaborator transport failure
func RecordError(service, errorType string) {
	ExternalErrorsTotal.WithLabelValues(service, errorType).Inc()
}

func RecordRateLimitWait(service string, waited time.Duration) {
	RateLimitWait.WithLabelValues(service).Observe(waited.Seconds())
}

// CacheRecorder returns a hit/miss callback for the named cache
func CacheRecorder(cache string) func(hit bool) {
	hits := CacheLookups.WithLabelValues(cache, "hit")
	misses := CacheLookups.WithLabelValues(cache, "miss")
	return func(hit bool) {
		if hit {
			hits.Inc()
			return
		}
		misses.Inc()
	}
}

// RecordEnrichment counts an enrichment outcome. An unavailable source is
// also a fallback; disabled attempts never waited and skip the histogram.
func RecordEnrichment(status string, duration time.Duration) {
	EnrichmentOutcomes.WithLabelValues(status).Inc()
	if status == "disabled" {
		return
	}
	EnrichmentDuration.Observe(duration.Seconds())
	if status == "unavailable" {
		EnrichmentFallbacks.Inc()
	}
}

func RecordUnknownWeather(condition string) {
	if len(condition) > maxConditionLabelLen {
		condition = condition[:maxConditionLabelLen]
	}
	UnknownWeatherConditions.WithLabelValues(condition).Inc()
}

func RecordWeatherFallback() {
	WeatherFallbacks.Inc()
}

func RecordEcoScore(vehicleType string, score int) {
	EcoScores.WithLabelValues(vehicleType).Observe(float64(score))
}
