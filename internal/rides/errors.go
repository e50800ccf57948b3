package rides

import (
	"errors"
	"fmt"

	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
)

var (
	// ErrNotFound means the ride id does not exist.
	ErrNotFound = errors.New("ride not found")

	// ErrRideUnavailable means the ride is no longer accepting drivers.
	ErrRideUnavailable = errors.New("ride no longer available")

	// ErrPresenceSync means the driver is logically on duty but the
	// registry has no record of them; the client should resend its
	// location and retry.
	ErrPresenceSync = errors.New("location needs to sync, please resend your location")

	// ErrNotParticipant means the caller is neither the ride's customer
	// nor its assigned driver.
	ErrNotParticipant = errors.New("not a participant of this ride")

	// ErrInvalidStatus means the requested target status is unknown or
	// not reachable from the current state.
	ErrInvalidStatus = errors.New("invalid status transition")

	// ErrInvalidPayment means the payment method is unknown or the ride
	// is not completed yet.
	ErrInvalidPayment = errors.New("invalid payment request")
)

// VehicleMismatchError reports an accept attempt with the wrong vehicle.
type VehicleMismatchError struct {
	Requested vehicles.Type
	Driver    vehicles.Type
}

func (e *VehicleMismatchError) Error() string {
	return fmt.Sprintf("ride requires a %s but your vehicle is a %s", e.Requested, e.Driver)
}

// TooFarError reports an accept attempt from outside the search radius.
type TooFarError struct {
	DistanceKm float64
	MaxKm      float64
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("you are %.2f km from the pickup point, maximum is %.2f km", e.DistanceKm, e.MaxKm)
}
