package geo

import (
	"math"
	"testing"
)

func TestDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         Point{Lat: 14.5995, Lng: 120.9842},
			b:         Point{Lat: 14.5995, Lng: 120.9842},
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Manila City Hall to Quezon Memorial Circle (~11km)",
			a:         Point{Lat: 14.5896, Lng: 120.9815},
			b:         Point{Lat: 14.6515, Lng: 121.0493},
			wantKm:    10.2,
			tolerance: 1.5,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         Point{Lat: 40.7128, Lng: -74.0060},
			b:         Point{Lat: 34.0522, Lng: -118.2437},
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("DistanceKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	a := Point{Lat: 14.0, Lng: 121.0}
	b := Point{Lat: 14.05, Lng: 121.05}
	d1 := DistanceKm(a, b)
	d2 := DistanceKm(b, a)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("distance is not symmetric: %f vs %f", d1, d2)
	}
	if d1 <= 0 {
		t.Errorf("expected positive distance, got %f", d1)
	}
}

func TestDistanceMeters(t *testing.T) {
	a := Point{Lat: 14.0, Lng: 121.0}
	b := Point{Lat: 14.01, Lng: 121.0}
	km := DistanceKm(a, b)
	m := DistanceMeters(a, b)
	if math.Abs(m-km*1000) > 0.0001 {
		t.Errorf("DistanceMeters() = %f, want %f", m, km*1000)
	}
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"normal", Point{Lat: 14.5, Lng: 121.0}, true},
		{"nan lat", Point{Lat: math.NaN(), Lng: 121.0}, false},
		{"nan lng", Point{Lat: 14.5, Lng: math.NaN()}, false},
		{"lat out of range", Point{Lat: 91, Lng: 0}, false},
		{"lng out of range", Point{Lat: 0, Lng: 181}, false},
		{"boundary", Point{Lat: -90, Lng: 180}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
