package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ValidationError represents a validation error for coordinates or other values
type ValidationError struct {
	Code     string
	Message  string
	Guidance string
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidateCoords checks if latitude and longitude are within valid ranges
func ValidateCoords(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return ValidationError{
			Code:     string(ErrInvalidLatitude),
			Message:  fmt.Sprintf("Latitude must be between -90 and 90, got %f", lat),
			Guidance: "Ensure latitude is in decimal degrees",
		}
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return ValidationError{
			Code:     string(ErrInvalidLongitude),
			Message:  fmt.Sprintf("Longitude must be between -180 and 180, got %f", lon),
			Guidance: "Ensure longitude is in decimal degrees",
		}
	}
	return nil
}

// ValidateDistance checks that a trip distance is a positive finite number
func ValidateDistance(km float64) error {
	if math.IsNaN(km) || math.IsInf(km, 0) || km <= 0 {
		return ValidationError{
			Code:     string(ErrInvalidDistance),
			Message:  fmt.Sprintf("Distance must be greater than 0 km, got %v", km),
			Guidance: "Specify the trip length in kilometres",
		}
	}
	return nil
}

// ValidateDelay checks that a traffic delay is a non-negative finite number
func ValidateDelay(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return ValidationError{
			Code:     string(ErrInvalidDelay),
			Message:  fmt.Sprintf("Traffic delay must be 0 or more seconds, got %v", seconds),
			Guidance: "Use 0 when there is no traffic delay",
		}
	}
	return nil
}

// ParseRequiredString extracts a non-blank string argument
func ParseRequiredString(req mcp.CallToolRequest, key string) (string, error) {
	v := strings.TrimSpace(mcp.ParseString(req, key, ""))
	if v == "" {
		return "", ValidationError{
			Code:     string(ErrMissingParameter),
			Message:  fmt.Sprintf("%s is required", key),
			Guidance: fmt.Sprintf("Provide a non-empty %s", key),
		}
	}
	return v, nil
}

// ParseNumber reads a numeric argument. Numeric strings are accepted; any
// other value fails with a ValidationError carrying code. present is false
// when the argument is absent or null.
func ParseNumber(req mcp.CallToolRequest, key string, code ErrorCode) (v float64, present bool, err error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return 0, false, nil
	}

	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		v, err = n.Float64()
	case string:
		v, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		err = fmt.Errorf("unsupported type %T", raw)
	}
	if err != nil {
		return 0, true, ValidationError{
			Code:     string(code),
			Message:  fmt.Sprintf("%s must be a number, got %v", key, raw),
			Guidance: fmt.Sprintf("Pass %s as a plain number", key),
		}
	}
	return v, true, nil
}
