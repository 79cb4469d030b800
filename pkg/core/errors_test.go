package core

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrInvalidDistance:       http.StatusBadRequest,
		ErrUnknownVehicle:        http.StatusBadRequest,
		ErrMissingParameter:      http.StatusBadRequest,
		ErrNoResults:             http.StatusNotFound,
		ErrRateLimit:             http.StatusTooManyRequests,
		ErrServiceTimeout:        http.StatusGatewayTimeout,
		ErrServiceUnavailable:    http.StatusBadGateway,
		ErrNetworkError:          http.StatusBadGateway,
		ErrParseError:            http.StatusBadGateway,
		ErrInternalError:         http.StatusInternalServerError,
		ErrEnrichmentUnavailable: http.StatusInternalServerError,
		"SOMETHING_ELSE":         http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}

func TestServiceError(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCode
	}{
		{http.StatusBadRequest, ErrInvalidInput},
		{http.StatusNotFound, ErrServiceUnavailable},
		{http.StatusRequestTimeout, ErrServiceTimeout},
		{http.StatusTooManyRequests, ErrRateLimit},
		{http.StatusInternalServerError, ErrInternalError},
		{http.StatusBadGateway, ErrServiceUnavailable},
		{http.StatusServiceUnavailable, ErrServiceUnavailable},
		{http.StatusGatewayTimeout, ErrServiceTimeout},
	}
	for _, tt := range tests {
		err := ServiceError("OSRM", tt.status, "boom")
		if err.Code != string(tt.want) {
			t.Errorf("status %d: code = %s, want %s", tt.status, err.Code, tt.want)
		}
		if err.Guidance == "" || !strings.Contains(err.Message, "OSRM") {
			t.Errorf("status %d: %+v", tt.status, err)
		}
	}
}

func TestMCPErrorRendering(t *testing.T) {
	err := NewError(ErrUnknownVehicle, "unknown vehicle type \"tram\"").
		WithQuery("tram").
		WithSuggestions("petrol_car", "diesel_car")

	if got := err.Error(); got != `UNKNOWN_VEHICLE: unknown vehicle type "tram"` {
		t.Errorf("Error() = %q", got)
	}
	err.WithGuidance("Pick a listed vehicle")
	if !strings.HasSuffix(err.Error(), ". Pick a listed vehicle") {
		t.Errorf("Error() = %q", err.Error())
	}

	result := err.ToMCPResult()
	if !result.IsError || len(result.Content) != 1 {
		t.Fatalf("result = %+v", result)
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T", result.Content[0])
	}
	var decoded MCPError
	if err := json.Unmarshal([]byte(text.Text), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Query != "tram" || len(decoded.Suggestions) != 2 || decoded.Guidance == "" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError(ErrInvalidDelay, "delay must not be negative")
	if err.Code != string(ErrInvalidDelay) || err.Guidance == "" {
		t.Errorf("err = %+v", err)
	}
}
