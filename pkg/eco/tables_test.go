package eco

import (
	"math"
	"testing"
)

func TestWeatherTable(t *testing.T) {
	table := DefaultWeatherTable()

	for _, cond := range table.Conditions() {
		m, ok := table.Multiplier(cond)
		if !ok {
			t.Errorf("condition %q listed but not recognized", cond)
		}
		if m < 1.0 {
			t.Errorf("condition %q has multiplier %v < 1.0", cond, m)
		}
	}

	tests := []struct {
		condition  string
		want       float64
		recognized bool
	}{
		{"Clear", 1.0, true},
		{"Cloudy", 1.1, true},
		{"Rain", 1.2, true},
		{"Fog", 1.25, true},
		{"Thunderstorm", 1.3, true},
		{"Snow", 1.4, true},
		{"Sandstorm", 1.0, false},
		{"", 1.0, false},
		{"rain", 1.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			got, ok := table.Multiplier(tt.condition)
			if got != tt.want || ok != tt.recognized {
				t.Errorf("Multiplier(%q) = %v, %v; want %v, %v", tt.condition, got, ok, tt.want, tt.recognized)
			}
		})
	}
}

func TestNewWeatherTableRejectsBadFactors(t *testing.T) {
	tests := []struct {
		name    string
		impacts map[string]float64
	}{
		{"below one", map[string]float64{"Sunny": 0.9}},
		{"nan", map[string]float64{"Haze": math.NaN()}},
		{"empty name", map[string]float64{"": 1.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWeatherTable(tt.impacts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFuelPriceTable(t *testing.T) {
	table := DefaultFuelPriceTable()
	if table.Currency() != "INR" {
		t.Errorf("Currency() = %q", table.Currency())
	}

	for cat, want := range map[FuelCategory]float64{FuelPetrol: 102, FuelDiesel: 88, FuelHybrid: 102} {
		got, err := table.UnitPrice(cat)
		if err != nil {
			t.Fatalf("UnitPrice(%s): %v", cat, err)
		}
		if got != want {
			t.Errorf("UnitPrice(%s) = %v, want %v", cat, got, want)
		}
	}

	if _, err := table.UnitPrice("hydrogen"); err == nil {
		t.Error("expected error for unknown fuel category")
	}

	if _, err := NewFuelPriceTable("EUR", map[FuelCategory]float64{FuelPetrol: 1.8}); err == nil {
		t.Error("expected error for incomplete price table")
	}
	if _, err := NewFuelPriceTable("EUR", map[FuelCategory]float64{FuelPetrol: 1.8, FuelDiesel: -1, FuelHybrid: 1.8}); err == nil {
		t.Error("expected error for negative price")
	}
}
