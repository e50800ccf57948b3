package rides

import (
	"time"

	"github.com/bascecoride/ecoride-server-deploy104/internal/geo"
	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
)

// Status enumerates the ride lifecycle states.
type Status string

const (
	StatusSearching Status = "SEARCHING_FOR_RIDER"
	StatusStart     Status = "START"
	StatusArrived   Status = "ARRIVED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusTimeout   Status = "TIMEOUT"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSearching, StatusStart, StatusArrived, StatusCompleted, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s. COMPLETED is
// absorbing; CANCELLED and TIMEOUT are side terminals.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusTimeout
}

// CanTransition reports whether moving from s to next is legal. The
// forward chain is SEARCHING → START → ARRIVED → COMPLETED; CANCELLED
// and TIMEOUT are reachable from any non-terminal state. The
// SEARCHING → SEARCHING self-edge covers the rematch after a driver
// declines a pending offer.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusCancelled, StatusTimeout:
		return true
	case StatusSearching:
		return s == StatusSearching
	case StatusStart:
		return s == StatusSearching
	case StatusArrived:
		return s == StatusStart
	case StatusCompleted:
		return s == StatusStart || s == StatusArrived
	}
	return false
}

// Payment methods accepted on a completed ride.
const (
	PaymentCash  = "Cash"
	PaymentGCash = "GCash"
	PaymentCard  = "Card"
)

// ValidPaymentMethod reports whether m is an accepted payment method.
func ValidPaymentMethod(m string) bool {
	return m == PaymentCash || m == PaymentGCash || m == PaymentCard
}

// Stop is one endpoint of a ride.
type Stop struct {
	Address  string    `json:"address"`
	Point    geo.Point `json:"coords"`
	Landmark string    `json:"landmark,omitempty"`
}

// Ride represents one trip request and its lifecycle.
type Ride struct {
	ID           string        `json:"id"`
	Vehicle      vehicles.Type `json:"vehicle"`
	Pickup       Stop          `json:"pickup"`
	Drop         Stop          `json:"drop"`
	Passengers   int           `json:"passengers"`
	DistanceKm   float64       `json:"distance_km"`
	Fare         float64       `json:"fare"`
	CustomerID   string        `json:"customer_id"`
	CustomerName string        `json:"customer_name"`
	RiderID      *string       `json:"rider_id,omitempty"`
	RiderName    *string       `json:"rider_name,omitempty"`
	Status       Status        `json:"status"`
	OTP          int           `json:"otp"`

	CancelledBy   *string    `json:"cancelled_by,omitempty"`
	CancellerName *string    `json:"canceller_name,omitempty"`
	CancelReason  *string    `json:"cancel_reason,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`

	// Drivers who declined this ride; they never see it offered again.
	BlacklistedRiders []string `json:"-"`

	PaymentMethod      *string    `json:"payment_method,omitempty"`
	PaymentConfirmedAt *time.Time `json:"payment_confirmed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Blacklisted reports whether riderID has declined this ride before.
func (r *Ride) Blacklisted(riderID string) bool {
	for _, id := range r.BlacklistedRiders {
		if id == riderID {
			return true
		}
	}
	return false
}

// CreateRequest is the payload for creating a ride.
type CreateRequest struct {
	Vehicle    string `json:"vehicle"`
	Pickup     Stop   `json:"pickup"`
	Drop       Stop   `json:"drop"`
	Passengers int    `json:"passengers"`
}
