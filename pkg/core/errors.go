// Package core provides shared utilities for the ecoroute tools and clients.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorCode is the machine-readable code carried by every MCPError
type ErrorCode string

// Caller mistakes
const (
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrInvalidLatitude  ErrorCode = "INVALID_LATITUDE"
	ErrInvalidLongitude ErrorCode = "INVALID_LONGITUDE"
	ErrInvalidDistance  ErrorCode = "INVALID_DISTANCE"
	ErrInvalidDelay     ErrorCode = "INVALID_DELAY"
	ErrUnknownVehicle   ErrorCode = "UNKNOWN_VEHICLE"
	ErrEmptyParameter   ErrorCode = "EMPTY_PARAMETER"
	ErrMissingParameter ErrorCode = "MISSING_PARAMETER"
	ErrInvalidParameter ErrorCode = "INVALID_PARAMETER"
)

// Collaborator failures
const (
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"
	ErrParseError         ErrorCode = "PARSE_ERROR"

	// ErrEnrichmentUnavailable is informational; the core estimate is still valid
	ErrEnrichmentUnavailable ErrorCode = "ENRICHMENT_UNAVAILABLE"
)

// Everything else
const (
	ErrNoResults     ErrorCode = "NO_RESULTS"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatus is the status the HTTP surface answers with for c
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrInvalidInput, ErrInvalidLatitude, ErrInvalidLongitude,
		ErrInvalidDistance, ErrInvalidDelay, ErrUnknownVehicle,
		ErrEmptyParameter, ErrMissingParameter, ErrInvalidParameter:
		return http.StatusBadRequest
	case ErrNoResults:
		return http.StatusNotFound
	case ErrRateLimit:
		return http.StatusTooManyRequests
	case ErrServiceTimeout:
		return http.StatusGatewayTimeout
	case ErrServiceUnavailable, ErrNetworkError, ErrParseError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// MCPError is the error body returned by tools and HTTP handlers
type MCPError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Query       string   `json:"query,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Guidance    string   `json:"guidance,omitempty"`
}

func (e MCPError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Guidance != "" {
		msg += ". " + e.Guidance
	}
	return msg
}

// ErrorCode returns the code; tracing reads it to label failed spans
func (e MCPError) ErrorCode() string {
	return e.Code
}

// NewError creates an MCPError
func NewError(code ErrorCode, message string) *MCPError {
	return &MCPError{Code: string(code), Message: message}
}

// NewValidationError creates an MCPError telling the caller to fix its input
func NewValidationError(code ErrorCode, message string) *MCPError {
	return NewError(code, message).WithGuidance("Please correct the parameters and try again.")
}

func (e *MCPError) WithQuery(query string) *MCPError {
	e.Query = query
	return e
}

func (e *MCPError) WithGuidance(guidance string) *MCPError {
	e.Guidance = guidance
	return e
}

func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// ToMCPResult renders e as the JSON text of an error tool result
func (e *MCPError) ToMCPResult() *mcp.CallToolResult {
	body, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}
	return mcp.NewToolResultError(string(body))
}

type upstreamFailure struct {
	code     ErrorCode
	guidance string
}

// upstreamFailures classifies collaborator HTTP statuses
var upstreamFailures = map[int]upstreamFailure{
	http.StatusBadRequest:          {ErrInvalidInput, "The request was invalid. Check your parameters and try again."},
	http.StatusRequestTimeout:      {ErrServiceTimeout, "The request timed out. Please try again shortly."},
	http.StatusTooManyRequests:     {ErrRateLimit, "The service is rate-limited. Please try again in a few moments."},
	http.StatusInternalServerError: {ErrInternalError, "The server encountered an error. This is likely temporary, please try again later."},
	http.StatusServiceUnavailable:  {ErrServiceUnavailable, "The service is temporarily unavailable. Please try again later."},
	http.StatusGatewayTimeout:      {ErrServiceTimeout, "The request timed out. Please try again shortly."},
}

// ServiceError classifies a non-200 answer from a collaborator
func ServiceError(service string, statusCode int, message string) *MCPError {
	f, ok := upstreamFailures[statusCode]
	if !ok {
		f = upstreamFailure{ErrServiceUnavailable, "Please try again later or modify your request parameters."}
	}
	return NewError(f.code, fmt.Sprintf("%s service error: %s", service, message)).WithGuidance(f.guidance)
}

// ServiceFailure wraps a transport error from a named collaborator, keeping
// an MCPError as is
func ServiceFailure(service string, err error) *MCPError {
	var mcpErr *MCPError
	switch {
	case errors.As(err, &mcpErr):
		return mcpErr
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrServiceTimeout, service+" request timed out").
			WithGuidance("The request timed out. Please try again shortly.")
	}
	return NewError(ErrNetworkError, fmt.Sprintf("%s request failed: %v", service, err)).
		WithGuidance("Check network connectivity and try again later.")
}
