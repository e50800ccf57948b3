package events

// LatLng is a coordinate pair used in event payloads.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RideRequestedEvent is published to ride.requested.
type RideRequestedEvent struct {
	RideID      string  `json:"ride_id"`
	CustomerID  string  `json:"customer_id"`
	Vehicle     string  `json:"vehicle"`
	Pickup      LatLng  `json:"pickup"`
	Drop        LatLng  `json:"drop"`
	DistanceKm  float64 `json:"distance_km"`
	Fare        float64 `json:"fare"`
	RequestedAt string  `json:"requested_at"`
}

// RideAcceptedEvent is published to ride.accepted.
type RideAcceptedEvent struct {
	RideID     string `json:"ride_id"`
	RiderID    string `json:"rider_id"`
	CustomerID string `json:"customer_id"`
	AcceptedAt string `json:"accepted_at"`
}

// RideCompletedEvent is published to ride.completed.
type RideCompletedEvent struct {
	RideID      string  `json:"ride_id"`
	RiderID     string  `json:"rider_id"`
	CustomerID  string  `json:"customer_id"`
	Fare        float64 `json:"fare"`
	CompletedAt string  `json:"completed_at"`
}

// RideCancelledEvent is published to ride.cancelled.
type RideCancelledEvent struct {
	RideID      string `json:"ride_id"`
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason"`
	CancelledAt string `json:"cancelled_at"`
}

// RideTimedOutEvent is published to ride.timeout.
type RideTimedOutEvent struct {
	RideID     string `json:"ride_id"`
	Retries    int    `json:"retries"`
	TimedOutAt string `json:"timed_out_at"`
}
