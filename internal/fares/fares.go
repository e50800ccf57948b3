// Package fares computes ride fares from distance and per-vehicle rates,
// and issues the pickup-verification OTP.
package fares

import (
	"math/rand"

	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
)

// Rate is the pricing tuple for one vehicle type.
type Rate struct {
	Minimum float64 `json:"minimum"`
	PerKm   float64 `json:"per_km"`
}

// DefaultRates back every fare computation when no configured rows exist.
var DefaultRates = map[vehicles.Type]Rate{
	vehicles.Motorcycle: {Minimum: 15, PerKm: 2.5},
	vehicles.Tricycle:   {Minimum: 20, PerKm: 2.8},
	vehicles.Cab:        {Minimum: 30, PerKm: 3.0},
}

// Compute returns the fare for each vehicle type at the given distance:
// distance × per-km rate, floored by the per-vehicle minimum. Vehicle
// types missing from rates fall back to DefaultRates.
func Compute(distanceKm float64, rates map[vehicles.Type]Rate) map[vehicles.Type]float64 {
	out := make(map[vehicles.Type]float64, len(vehicles.All))
	for _, v := range vehicles.All {
		r, ok := rates[v]
		if !ok {
			r = DefaultRates[v]
		}
		fare := distanceKm * r.PerKm
		if fare < r.Minimum {
			fare = r.Minimum
		}
		out[v] = fare
	}
	return out
}

// GenerateOTP returns a 4-digit pickup code in [1000, 9999], shown in
// person at pickup. It carries no authentication weight.
func GenerateOTP() int {
	return rand.Intn(9000) + 1000
}
