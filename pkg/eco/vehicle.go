// Package eco implements the trip estimation engine: fuel consumption, fuel
// cost and CO2 emissions for a vehicle class under traffic and weather
// conditions, plus the derived eco score.
package eco

import (
	"fmt"
	"strings"
)

// VehicleClass identifies one of the supported vehicle classes.
type VehicleClass string

// Supported vehicle classes
const (
	PetrolCar VehicleClass = "petrol_car"
	DieselCar VehicleClass = "diesel_car"
	HybridCar VehicleClass = "hybrid_car"
	SmallVan  VehicleClass = "small_van"
	LargeVan  VehicleClass = "large_van"
	Truck     VehicleClass = "truck"
)

// FuelCategory is the pricing class a vehicle is mapped to.
type FuelCategory string

// Fuel categories
const (
	FuelPetrol FuelCategory = "petrol"
	FuelDiesel FuelCategory = "diesel"
	FuelHybrid FuelCategory = "hybrid"
)

// VehicleProfile holds the reference figures for a vehicle class
type VehicleProfile struct {
	Class          VehicleClass `json:"vehicle_type"`
	DisplayName    string       `json:"display_name"`
	EmissionFactor float64      `json:"emission_factor_kg_per_km"`
	BaseEfficiency float64      `json:"base_efficiency_km_per_l"`
	FuelCategory   FuelCategory `json:"fuel_category"`
}

// profiles is read-only after package initialisation.
var profiles = map[VehicleClass]VehicleProfile{
	PetrolCar: {Class: PetrolCar, DisplayName: "Petrol Car", EmissionFactor: 0.2, BaseEfficiency: 12, FuelCategory: FuelPetrol},
	DieselCar: {Class: DieselCar, DisplayName: "Diesel Car", EmissionFactor: 0.18, BaseEfficiency: 14, FuelCategory: FuelDiesel},
	HybridCar: {Class: HybridCar, DisplayName: "Hybrid Car", EmissionFactor: 0.12, BaseEfficiency: 20, FuelCategory: FuelHybrid},
	SmallVan:  {Class: SmallVan, DisplayName: "Small Van", EmissionFactor: 0.25, BaseEfficiency: 10, FuelCategory: FuelPetrol},
	LargeVan:  {Class: LargeVan, DisplayName: "Large Van", EmissionFactor: 0.35, BaseEfficiency: 8, FuelCategory: FuelDiesel},
	Truck:     {Class: Truck, DisplayName: "Truck", EmissionFactor: 0.8, BaseEfficiency: 4, FuelCategory: FuelDiesel},
}

// AllVehicleClasses returns every supported class in display order
func AllVehicleClasses() []VehicleClass {
	return []VehicleClass{PetrolCar, DieselCar, HybridCar, SmallVan, LargeVan, Truck}
}

// ParseVehicleClass converts user input to a VehicleClass. Surrounding
// whitespace is ignored; anything else must match exactly.
func ParseVehicleClass(s string) (VehicleClass, error) {
	c := VehicleClass(strings.TrimSpace(s))
	if !c.IsValid() {
		return "", &InputError{
			Field:  FieldVehicleType,
			Reason: fmt.Sprintf("unknown vehicle type %q", s),
		}
	}
	return c, nil
}

// IsValid reports whether c is a supported class
func (c VehicleClass) IsValid() bool {
	_, ok := profiles[c]
	return ok
}

// String returns the wire name of the class
func (c VehicleClass) String() string {
	return string(c)
}

// Profile returns the reference figures for c
func (c VehicleClass) Profile() (VehicleProfile, error) {
	p, ok := profiles[c]
	if !ok {
		return VehicleProfile{}, &InputError{
			Field:  FieldVehicleType,
			Reason: fmt.Sprintf("unknown vehicle type %q", string(c)),
		}
	}
	return p, nil
}

// Profiles returns the profiles of all supported classes in display order
func Profiles() []VehicleProfile {
	classes := AllVehicleClasses()
	out := make([]VehicleProfile, 0, len(classes))
	for _, c := range classes {
		out = append(out, profiles[c])
	}
	return out
}
