package eco

import "fmt"

// FuelPriceTable maps a fuel category to a unit price per litre. It is built
// once at start-up and never mutated.
type FuelPriceTable struct {
	currency string
	prices   map[FuelCategory]float64
}

// DefaultCurrency is the currency of DefaultFuelPrices
const DefaultCurrency = "INR"

// DefaultFuelPrices are per-litre prices in DefaultCurrency
var DefaultFuelPrices = map[FuelCategory]float64{
	FuelPetrol: 102.0,
	FuelDiesel: 88.0,
	FuelHybrid: 102.0,
}

// NewFuelPriceTable builds a price table. Every fuel category must be priced.
func NewFuelPriceTable(currency string, prices map[FuelCategory]float64) (*FuelPriceTable, error) {
	t := &FuelPriceTable{
		currency: currency,
		prices:   make(map[FuelCategory]float64, len(prices)),
	}
	for _, cat := range []FuelCategory{FuelPetrol, FuelDiesel, FuelHybrid} {
		price, ok := prices[cat]
		if !ok {
			return nil, fmt.Errorf("missing fuel price for %s", cat)
		}
		if price < 0 {
			return nil, fmt.Errorf("fuel price for %s must not be negative, got %v", cat, price)
		}
		t.prices[cat] = price
	}
	return t, nil
}

// DefaultFuelPriceTable returns the table built from DefaultFuelPrices
func DefaultFuelPriceTable() *FuelPriceTable {
	t, err := NewFuelPriceTable(DefaultCurrency, DefaultFuelPrices)
	if err != nil {
		panic(err)
	}
	return t
}

// UnitPrice returns the price per litre for cat
func (t *FuelPriceTable) UnitPrice(cat FuelCategory) (float64, error) {
	price, ok := t.prices[cat]
	if !ok {
		return 0, fmt.Errorf("no fuel price for category %q", cat)
	}
	return price, nil
}

// Currency returns the currency code prices are expressed in
func (t *FuelPriceTable) Currency() string {
	return t.currency
}
