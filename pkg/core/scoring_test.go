package core

import (
	"math"
	"testing"
)

func TestWeightedSum(t *testing.T) {
	weights := []ScoreWeight{
		{Category: "a", Weight: 20},
		{Category: "b", Weight: 40},
	}

	tests := []struct {
		name   string
		values map[string]float64
		want   float64
	}{
		{"both", map[string]float64{"a": 1, "b": 0.5}, 40},
		{"missing category", map[string]float64{"a": 2}, 40},
		{"negative", map[string]float64{"a": -1, "b": -1}, -60},
		{"extra ignored", map[string]float64{"a": 1, "c": 100}, 20},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeightedSum(tt.values, weights); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("WeightedSum() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBoundedScore(t *testing.T) {
	tests := []struct {
		raw  float64
		want int
	}{
		{-10, 0},
		{0, 0},
		{5.388, 5},
		{42.5, 43},
		{99.4, 99},
		{269.38, 100},
		{math.NaN(), 0},
		{math.Inf(1), 100},
	}

	for _, tt := range tests {
		if got := BoundedScore(tt.raw, 100); got != tt.want {
			t.Errorf("BoundedScore(%v) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestThresholdCategory(t *testing.T) {
	bands := []Threshold{
		{Name: "low", Min: 0, Max: 30},
		{Name: "medium", Min: 31, Max: 70},
		{Name: "high", Min: 71, Max: 100},
	}

	tests := []struct {
		score int
		want  string
	}{
		{0, "low"},
		{30, "low"},
		{31, "medium"},
		{70, "medium"},
		{100, "high"},
		{101, "unknown"},
		{-1, "unknown"},
	}

	for _, tt := range tests {
		if got := ThresholdCategory(tt.score, bands); got != tt.want {
			t.Errorf("ThresholdCategory(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
