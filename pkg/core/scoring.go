package core

import (
	"math"
)

// ScoreWeight represents a weight for a specific category in a scoring algorithm
type ScoreWeight struct {
	Category string  // Name of the category
	Weight   float64 // Weight multiplier
}

// WeightedSum multiplies each category value by its weight and adds them up.
// Categories missing from values contribute nothing. The result is not bounded.
func WeightedSum(values map[string]float64, weights []ScoreWeight) float64 {
	var sum float64
	for _, w := range weights {
		if v, ok := values[w.Category]; ok {
			sum += v * w.Weight
		}
	}
	return sum
}

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}

// BoundedScore clamps a raw score to [0, maxScore] and rounds half away from zero
func BoundedScore(raw, maxScore float64) int {
	return int(math.Round(Clamp(raw, 0, maxScore)))
}

// Threshold is an inclusive score band with a name
type Threshold struct {
	Name string
	Min  int
	Max  int
}

// ThresholdCategory returns the name of the first band containing score,
// or "unknown" when none does
func ThresholdCategory(score int, thresholds []Threshold) string {
	for _, t := range thresholds {
		if score >= t.Min && score <= t.Max {
			return t.Name
		}
	}
	return "unknown"
}
