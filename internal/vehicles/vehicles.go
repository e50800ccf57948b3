// Package vehicles defines the vehicle-type enumeration shared by fares,
// matching and ride creation.
package vehicles

import "fmt"

// Type identifies a vehicle class a ride can be requested for.
type Type string

const (
	Motorcycle Type = "Motorcycle"
	Tricycle   Type = "Tricycle"
	Cab        Type = "Cab"
)

// All lists every supported vehicle type.
var All = []Type{Motorcycle, Tricycle, Cab}

// Parse validates a raw vehicle-type string.
func Parse(s string) (Type, error) {
	switch Type(s) {
	case Motorcycle, Tricycle, Cab:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown vehicle type %q", s)
}

// DefaultCapacity is the passenger limit used when no configured value
// exists. Tricycle capacity varies by deployment, so the settings layer
// can override any of these.
var DefaultCapacity = map[Type]int{
	Motorcycle: 1,
	Tricycle:   3,
	Cab:        4,
}
