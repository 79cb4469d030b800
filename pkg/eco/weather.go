package eco

import (
	"fmt"
	"sort"
)

// NeutralWeatherImpact applies to conditions missing from the table.
const NeutralWeatherImpact = 1.0

// WeatherTable maps a weather condition to a multiplicative penalty on fuel
// consumption and emissions. Keys are matched exactly, including case.
// A table is immutable once built and safe for concurrent use.
type WeatherTable struct {
	impacts map[string]float64
}

// DefaultWeatherImpacts are the condition penalties used unless configured otherwise
var DefaultWeatherImpacts = map[string]float64{
	"Clear":        1.0,
	"Cloudy":       1.1,
	"Rain":         1.2,
	"Fog":          1.25,
	"Thunderstorm": 1.3,
	"Snow":         1.4,
}

// NewWeatherTable copies impacts into a new table. Every factor must be at
// least 1.0, so adverse weather can only degrade efficiency.
func NewWeatherTable(impacts map[string]float64) (*WeatherTable, error) {
	t := &WeatherTable{impacts: make(map[string]float64, len(impacts))}
	for cond, factor := range impacts {
		if cond == "" {
			return nil, fmt.Errorf("weather condition name must not be empty")
		}
		if !(factor >= NeutralWeatherImpact) {
			return nil, fmt.Errorf("weather impact for %q must be >= 1.0, got %v", cond, factor)
		}
		t.impacts[cond] = factor
	}
	return t, nil
}

// DefaultWeatherTable returns a table built from DefaultWeatherImpacts
func DefaultWeatherTable() *WeatherTable {
	t, err := NewWeatherTable(DefaultWeatherImpacts)
	if err != nil {
		panic(err)
	}
	return t
}

// Multiplier returns the penalty for condition and whether the condition was
// recognised. Unrecognised conditions get NeutralWeatherImpact.
func (t *WeatherTable) Multiplier(condition string) (float64, bool) {
	factor, ok := t.impacts[condition]
	if !ok {
		return NeutralWeatherImpact, false
	}
	return factor, true
}

// Conditions lists the recognised condition names, sorted
func (t *WeatherTable) Conditions() []string {
	out := make([]string, 0, len(t.impacts))
	for cond := range t.impacts {
		out = append(out, cond)
	}
	sort.Strings(out)
	return out
}
