package eco

import (
	"math"

	"github.com/NERVsystems/ecoroute/pkg/core"
)

// Score component names
const (
	ComponentEfficiency = "efficiency"
	ComponentEmissions  = "emissions"
	ComponentTraffic    = "traffic"
	ComponentWeather    = "weather"
)

// MaxEcoScore is the upper bound of the reported score
const MaxEcoScore = 100

// Grades, matching the green, amber and red bands of the route display
const (
	GradePoor = "poor"
	GradeFair = "fair"
	GradeGood = "good"
)

var scoreWeights = []core.ScoreWeight{
	{Category: ComponentEfficiency, Weight: 20},
	{Category: ComponentEmissions, Weight: 40},
	{Category: ComponentTraffic, Weight: 20},
	{Category: ComponentWeather, Weight: 20},
}

var gradeBands = []core.Threshold{
	{Name: GradePoor, Min: 0, Max: 59},
	{Name: GradeFair, Min: 60, Max: 79},
	{Name: GradeGood, Min: 80, Max: 100},
}

// EcoScore is a 0-100 rating of a trip. Raw keeps the unbounded weighted sum;
// Clamped is set only when clamping changed the rounded value.
type EcoScore struct {
	Value      int                `json:"value"`
	Raw        float64            `json:"raw"`
	Clamped    bool               `json:"clamped"`
	Grade      string             `json:"grade"`
	Components map[string]float64 `json:"components"`
}

// Score rates an estimate. The components are
//
//	efficiency = adjusted km/L x 20
//	emissions  = (1 - co2/100) x 40
//	traffic    = (1 - delay/3600) x 20
//	weather    = (1 - (multiplier - 1)) x 20
//
// and the value is round(clamp(sum, 0, 100)).
func Score(est TripEstimate, trafficDelaySeconds, weatherMultiplier float64) EcoScore {
	factors := map[string]float64{
		ComponentEfficiency: est.Efficiency,
		ComponentEmissions:  1 - est.CO2EmissionsKg/100,
		ComponentTraffic:    1 - trafficDelaySeconds/3600,
		ComponentWeather:    1 - (weatherMultiplier - 1),
	}

	components := make(map[string]float64, len(scoreWeights))
	for _, w := range scoreWeights {
		components[w.Category] = factors[w.Category] * w.Weight
	}

	raw := core.WeightedSum(factors, scoreWeights)
	value := core.BoundedScore(raw, MaxEcoScore)

	return EcoScore{
		Value:      value,
		Raw:        raw,
		Clamped:    math.Round(raw) != float64(value),
		Grade:      core.ThresholdCategory(value, gradeBands),
		Components: components,
	}
}
