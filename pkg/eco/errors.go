package eco

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every input validation failure.
var ErrInvalidInput = errors.New("invalid input")

// Input field names reported in InputError
const (
	FieldDistance     = "distance_km"
	FieldVehicleType  = "vehicle_type"
	FieldTrafficDelay = "traffic_delay_seconds"
	FieldMultiplier   = "condition_multiplier"
)

// InputError describes a rejected trip parameter.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) true for every InputError
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}
