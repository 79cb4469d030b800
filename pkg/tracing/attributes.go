package tracing

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	// MCP tool attributes
	AttrMCPToolName     = "mcp.tool.name"
	AttrMCPToolStatus   = "mcp.tool.status"
	AttrMCPToolDuration = "mcp.tool.duration_ms"
	AttrMCPResultSize   = "mcp.tool.result_size"

	// Trip estimation attributes
	AttrVehicleType      = "eco.vehicle_type"
	AttrDistanceKm       = "eco.distance_km"
	AttrTrafficDelay     = "eco.traffic_delay_s"
	AttrWeatherCondition = "eco.weather_condition"
	AttrFuelLitres       = "eco.fuel_l"
	AttrCO2Kg            = "eco.co2_kg"
	AttrEnrichmentStatus = "eco.enrichment.status"
	AttrEcoScore         = "eco.score"

	// External service attributes
	AttrServiceName      = "ecoroute.service.name"
	AttrServiceOperation = "ecoroute.service.operation"
	AttrServiceURL       = "ecoroute.service.url"
	AttrServiceStatus    = "ecoroute.service.status"

	// Cache attributes
	AttrCacheType = "ecoroute.cache.type"
	AttrCacheHit  = "ecoroute.cache.hit"
	AttrCacheKey  = "ecoroute.cache.key"

	// Rate limiting attributes
	AttrRateLimitService = "ecoroute.ratelimit.service"
	AttrRateLimitWaitMs  = "ecoroute.ratelimit.wait_ms"

	// HTTP transport attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPPath       = "http.path"
	AttrHTTPRequestID  = "http.request_id"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Outcomes recorded under AttrMCPToolStatus
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Service names
const (
	ServiceNominatim  = "nominatim"
	ServiceOSRM       = "osrm"
	ServiceTomTom     = "tomtom"
	ServiceWeather    = "openweathermap"
	ServiceEnrichment = "carbon_footprint"
)

// Cache types
const (
	CacheTypeGeocode    = "geocode"
	CacheTypeRoute      = "route"
	CacheTypeWeather    = "weather"
	CacheTypeEnrichment = "enrichment"
)

// MCPToolAttributes returns attributes for MCP tool execution
func MCPToolAttributes(toolName string, status string, durationMs int64, resultSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrMCPToolName, toolName),
		attribute.String(AttrMCPToolStatus, status),
		attribute.Int64(AttrMCPToolDuration, durationMs),
		attribute.Int(AttrMCPResultSize, resultSize),
	}
}

// ServiceAttributes returns attributes for external service calls
func ServiceAttributes(service, operation, url string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrServiceName, service),
		attribute.String(AttrServiceOperation, operation),
		attribute.String(AttrServiceURL, url),
		attribute.Int(AttrServiceStatus, status),
	}
}

// CacheAttributes returns attributes for cache operations
func CacheAttributes(cacheType string, hit bool, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCacheType, cacheType),
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheKey, key),
	}
}

// ErrorAttributes describes err; AttrErrorType carries the MCP error code
// when err has one
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	kind := "error"
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		kind = coded.ErrorCode()
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, kind),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
