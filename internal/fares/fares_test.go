package fares

import (
	"math"
	"testing"

	"github.com/bascecoride/ecoride-server-deploy104/internal/geo"
	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
)

func TestCompute_DefaultRates(t *testing.T) {
	tests := []struct {
		name       string
		distanceKm float64
		vehicle    vehicles.Type
		want       float64
	}{
		{"short motorcycle hits minimum", 1.0, vehicles.Motorcycle, 15},
		{"long motorcycle is per-km", 10.0, vehicles.Motorcycle, 25},
		{"short tricycle hits minimum", 2.0, vehicles.Tricycle, 20},
		{"long tricycle is per-km", 10.0, vehicles.Tricycle, 28},
		{"short cab hits minimum", 5.0, vehicles.Cab, 30},
		{"long cab is per-km", 20.0, vehicles.Cab, 60},
		{"zero distance", 0, vehicles.Cab, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.distanceKm, nil)[tt.vehicle]
			if math.Abs(got-tt.want) > 0.0001 {
				t.Errorf("Compute(%f)[%s] = %f, want %f", tt.distanceKm, tt.vehicle, got, tt.want)
			}
		})
	}
}

func TestCompute_CabFareMatchesFormula(t *testing.T) {
	pickup := geo.Point{Lat: 14.0, Lng: 121.0}
	drop := geo.Point{Lat: 14.05, Lng: 121.05}
	d := geo.DistanceKm(pickup, drop)
	if d <= 0 {
		t.Fatalf("expected positive distance, got %f", d)
	}

	fare := Compute(d, nil)[vehicles.Cab]
	want := math.Max(d*3.0, 30)
	if math.Abs(fare-want) > 0.0001 {
		t.Errorf("cab fare = %f, want %f", fare, want)
	}
}

func TestCompute_ConfiguredRatesOverrideDefaults(t *testing.T) {
	rates := map[vehicles.Type]Rate{
		vehicles.Cab: {Minimum: 100, PerKm: 10},
	}
	out := Compute(5, rates)
	if out[vehicles.Cab] != 100 {
		t.Errorf("configured cab minimum ignored: got %f", out[vehicles.Cab])
	}
	// Other types still take defaults.
	if out[vehicles.Motorcycle] != 15 {
		t.Errorf("motorcycle default lost: got %f", out[vehicles.Motorcycle])
	}
}

func TestGenerateOTP_Range(t *testing.T) {
	for i := 0; i < 1000; i++ {
		otp := GenerateOTP()
		if otp < 1000 || otp > 9999 {
			t.Fatalf("OTP %d out of range [1000, 9999]", otp)
		}
	}
}
