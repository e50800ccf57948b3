package rides

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bascecoride/ecoride-server-deploy104/internal/events"
	"github.com/bascecoride/ecoride-server-deploy104/internal/fares"
	"github.com/bascecoride/ecoride-server-deploy104/internal/geo"
	"github.com/bascecoride/ecoride-server-deploy104/internal/observability"
	"github.com/bascecoride/ecoride-server-deploy104/internal/registry"
	"github.com/bascecoride/ecoride-server-deploy104/internal/settings"
	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
	"github.com/bascecoride/ecoride-server-deploy104/pkg/kafka"
)

// Outbound event names shared with the realtime layer.
const (
	EventRideNew       = "ride:new"
	EventRideAccepted  = "ride:accepted"
	EventRideUpdated   = "ride:updated"
	EventRideCompleted = "ride:completed"
	EventRideCancelled = "ride:cancelled"
	EventRideTimeout   = "ride:timeout"
	EventRideRemoved   = "ride:removed"
)

// Actor roles.
const (
	RoleCustomer = "customer"
	RoleRider    = "rider"
)

// Actor identifies who is performing a ride operation.
type Actor struct {
	ID   string
	Name string
	Role string
}

// Broadcaster fans ride events out over the realtime layer.
type Broadcaster interface {
	ToRide(rideID, event string, payload any)
	ToOnDuty(event string, payload any)
	ToUser(userID, event string, payload any)
}

// Dispatcher manages the per-ride retry/timeout loop.
type Dispatcher interface {
	Start(ride *Ride)
	Stop(rideID string)
}

// Cache keeps a redis snapshot of active rides.
type Cache interface {
	CacheRide(ctx context.Context, rideID string, data map[string]string) error
	DropCachedRide(ctx context.Context, rideID string) error
}

// Charger captures a non-cash payment, best effort.
type Charger interface {
	Charge(ctx context.Context, r *Ride, method string) error
}

// Service owns the ride state machine and its side effects.
type Service struct {
	store      Store
	registry   *registry.Registry
	settings   *settings.Service
	broadcast  Broadcaster
	dispatcher Dispatcher
	kafka      *kafka.Client
	cache      Cache
	charger    Charger
}

// NewService wires the ride service. kafka, cache and charger may be nil.
func NewService(store Store, reg *registry.Registry, st *settings.Service, b Broadcaster, d Dispatcher, k *kafka.Client, c Cache, ch Charger) *Service {
	return &Service{
		store:      store,
		registry:   reg,
		settings:   st,
		broadcast:  b,
		dispatcher: d,
		kafka:      k,
		cache:      c,
		charger:    ch,
	}
}

// Create validates the request, prices the ride, persists it as
// SEARCHING_FOR_RIDER, announces it to every on-duty driver and starts
// its dispatch loop.
func (s *Service) Create(ctx context.Context, customer Actor, req CreateRequest) (*Ride, error) {
	vt, err := vehicles.Parse(req.Vehicle)
	if err != nil {
		return nil, err
	}
	if !req.Pickup.Point.Valid() || !req.Drop.Point.Valid() {
		return nil, fmt.Errorf("pickup and drop coordinates are required")
	}
	capMax := s.settings.Capacity(vt)
	if req.Passengers < 1 || req.Passengers > capMax {
		return nil, fmt.Errorf("passenger count must be between 1 and %d for a %s", capMax, vt)
	}

	now := time.Now()
	dist := geo.DistanceKm(req.Pickup.Point, req.Drop.Point)
	fare := fares.Compute(dist, s.settings.Rates())[vt]

	r := &Ride{
		ID:                uuid.New().String(),
		Vehicle:           vt,
		Pickup:            req.Pickup,
		Drop:              req.Drop,
		Passengers:        req.Passengers,
		DistanceKm:        dist,
		Fare:              fare,
		CustomerID:        customer.ID,
		CustomerName:      customer.Name,
		Status:            StatusSearching,
		OTP:               fares.GenerateOTP(),
		BlacklistedRiders: []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	observability.RidesCreated.Inc()

	s.cacheSnapshot(ctx, r)
	s.publish(kafka.TopicRideRequested, r.ID, events.RideRequestedEvent{
		RideID:      r.ID,
		CustomerID:  r.CustomerID,
		Vehicle:     string(r.Vehicle),
		Pickup:      events.LatLng{Lat: r.Pickup.Point.Lat, Lng: r.Pickup.Point.Lng},
		Drop:        events.LatLng{Lat: r.Drop.Point.Lat, Lng: r.Drop.Point.Lng},
		DistanceKm:  r.DistanceKm,
		Fare:        r.Fare,
		RequestedAt: now.Format(time.RFC3339),
	})

	// Every on-duty driver hears about the new ride; clients filter by
	// vehicle type themselves.
	s.broadcast.ToOnDuty(EventRideNew, r)
	s.dispatcher.Start(r)
	return r, nil
}

// Accept assigns the accepting driver to a searching ride. Validation
// order: availability, vehicle match, registry presence, pickup
// distance. The final assignment is a conditional write so two drivers
// racing on the same ride cannot both win.
func (s *Service) Accept(ctx context.Context, rideID string, driver Actor, vehicle vehicles.Type) (*Ride, error) {
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusSearching || r.Blacklisted(driver.ID) {
		return nil, ErrRideUnavailable
	}
	if vehicle != r.Vehicle {
		return nil, &VehicleMismatchError{Requested: r.Vehicle, Driver: vehicle}
	}
	p, ok := s.registry.Get(driver.ID)
	if !ok {
		return nil, ErrPresenceSync
	}
	maxKm := s.settings.SearchRadiusKm()
	if d := geo.DistanceKm(p.Point, r.Pickup.Point); d > maxKm {
		return nil, &TooFarError{DistanceKm: d, MaxKm: maxKm}
	}

	ok, err = s.store.Accept(ctx, rideID, driver.ID, driver.Name)
	if err != nil {
		return nil, fmt.Errorf("accept ride: %w", err)
	}
	if !ok {
		return nil, ErrRideUnavailable
	}
	observability.RidesAccepted.Inc()
	s.dispatcher.Stop(rideID)

	r, err = s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, r)
	s.publish(kafka.TopicRideAccepted, r.ID, events.RideAcceptedEvent{
		RideID:     r.ID,
		RiderID:    driver.ID,
		CustomerID: r.CustomerID,
		AcceptedAt: time.Now().Format(time.RFC3339),
	})

	s.broadcast.ToRide(r.ID, EventRideAccepted, r)
	s.broadcast.ToOnDuty(EventRideAccepted, r)
	return r, nil
}

// UpdateStatus moves a ride along START → ARRIVED → COMPLETED. A ride
// already COMPLETED is left untouched and reported as success.
func (s *Service) UpdateStatus(ctx context.Context, rideID string, actor Actor, to Status) (*Ride, error) {
	switch to {
	case StatusStart, StatusArrived, StatusCompleted:
	default:
		return nil, ErrInvalidStatus
	}
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !s.isParticipant(r, actor) {
		return nil, ErrNotParticipant
	}
	if r.Status == StatusCompleted {
		return r, nil
	}
	if !r.Status.CanTransition(to) {
		return nil, ErrInvalidStatus
	}

	ok, err := s.store.SetStatus(ctx, rideID, r.Status, to)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		// Lost a race; re-read to distinguish a completed no-op from a
		// genuine conflict.
		r, err = s.store.Get(ctx, rideID)
		if err != nil {
			return nil, err
		}
		if r.Status == StatusCompleted {
			return r, nil
		}
		return nil, ErrInvalidStatus
	}

	r, err = s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	s.broadcast.ToRide(r.ID, EventRideUpdated, r)

	if to == StatusCompleted {
		observability.RidesCompleted.Inc()
		s.dispatcher.Stop(rideID)
		s.dropSnapshot(ctx, rideID)
		s.broadcast.ToOnDuty(EventRideCompleted, r)
		riderID := ""
		if r.RiderID != nil {
			riderID = *r.RiderID
		}
		s.publish(kafka.TopicRideCompleted, r.ID, events.RideCompletedEvent{
			RideID:      r.ID,
			RiderID:     riderID,
			CustomerID:  r.CustomerID,
			Fare:        r.Fare,
			CompletedAt: time.Now().Format(time.RFC3339),
		})
	} else {
		s.cacheSnapshot(ctx, r)
	}
	return r, nil
}

// Cancel ends or rewinds a ride depending on who asks and when.
//
// Customer cancel and driver cancel after acceptance terminate the ride.
// A driver declining a still-searching ride is blacklisted on it and the
// ride keeps searching for everyone else.
func (s *Service) Cancel(ctx context.Context, rideID string, actor Actor, reason string) (*Ride, error) {
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, ErrInvalidStatus
	}

	if actor.Role == RoleRider && r.Status == StatusSearching {
		return s.declineOffer(ctx, r, actor)
	}
	if !s.isParticipant(r, actor) {
		return nil, ErrNotParticipant
	}

	ok, err := s.store.Cancel(ctx, rideID, actor.ID, actor.Name, reason)
	if err != nil {
		return nil, fmt.Errorf("cancel ride: %w", err)
	}
	if !ok {
		return nil, ErrInvalidStatus
	}
	observability.RidesCancelled.Inc()
	s.dispatcher.Stop(rideID)
	s.dropSnapshot(ctx, rideID)

	out, err := s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	s.broadcast.ToRide(out.ID, EventRideCancelled, out)
	switch actor.Role {
	case RoleCustomer:
		if out.RiderID != nil {
			s.broadcast.ToUser(*out.RiderID, EventRideCancelled, out)
		}
	case RoleRider:
		s.broadcast.ToUser(out.CustomerID, EventRideCancelled, out)
	}
	s.broadcast.ToOnDuty(EventRideRemoved, map[string]string{"ride_id": out.ID})

	s.publish(kafka.TopicRideCancelled, out.ID, events.RideCancelledEvent{
		RideID:      out.ID,
		CancelledBy: actor.ID,
		Reason:      reason,
		CancelledAt: time.Now().Format(time.RFC3339),
	})
	return out, nil
}

// declineOffer handles a driver backing out of a pending offer: the ride
// stays live for everyone else, only the declining driver's client drops it.
func (s *Service) declineOffer(ctx context.Context, r *Ride, driver Actor) (*Ride, error) {
	ok, err := s.store.ResetForRematch(ctx, r.ID, driver.ID)
	if err != nil {
		return nil, fmt.Errorf("decline ride: %w", err)
	}
	if !ok {
		return nil, ErrRideUnavailable
	}
	s.broadcast.ToUser(driver.ID, EventRideRemoved, map[string]string{"ride_id": r.ID})
	log.Printf("[rides] driver %s declined ride %s, ride stays searchable", driver.ID, r.ID)
	return s.store.Get(ctx, r.ID)
}

// ConfirmPayment records the payment method on a completed ride and
// notifies the driver. Non-cash methods are additionally captured via
// the charger, best effort.
func (s *Service) ConfirmPayment(ctx context.Context, rideID string, customer Actor, method string) (*Ride, error) {
	if !ValidPaymentMethod(method) {
		return nil, ErrInvalidPayment
	}
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.CustomerID != customer.ID {
		return nil, ErrNotParticipant
	}

	ok, err := s.store.SetPayment(ctx, rideID, method)
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	if !ok {
		return nil, ErrInvalidPayment
	}

	r, err = s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.RiderID != nil {
		s.broadcast.ToUser(*r.RiderID, EventRideUpdated, r)
	}
	if method != PaymentCash && s.charger != nil {
		if err := s.charger.Charge(ctx, r, method); err != nil {
			log.Printf("[rides] payment capture for ride %s failed: %v", r.ID, err)
		}
	}
	return r, nil
}

// Get fetches one ride.
func (s *Service) Get(ctx context.Context, rideID string) (*Ride, error) {
	return s.store.Get(ctx, rideID)
}

// History lists rides the user took part in, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]*Ride, error) {
	return s.store.ByParticipant(ctx, userID)
}

// NearbyDrivers returns on-duty drivers around origin within the
// configured radius, optionally filtered by vehicle type.
func (s *Service) NearbyDrivers(origin geo.Point, vehicle vehicles.Type) []registry.Match {
	return s.registry.FindNearby(origin, s.settings.SearchRadiusKm()*1000, vehicle, nil)
}

// EstimateFares prices a distance across all vehicle types.
func (s *Service) EstimateFares(distanceKm float64) map[vehicles.Type]float64 {
	return fares.Compute(distanceKm, s.settings.Rates())
}

func (s *Service) isParticipant(r *Ride, actor Actor) bool {
	if actor.ID == r.CustomerID {
		return true
	}
	return r.RiderID != nil && *r.RiderID == actor.ID
}

func (s *Service) cacheSnapshot(ctx context.Context, r *Ride) {
	if s.cache == nil {
		return
	}
	err := s.cache.CacheRide(ctx, r.ID, map[string]string{
		"status":   string(r.Status),
		"vehicle":  string(r.Vehicle),
		"customer": r.CustomerID,
		"fare":     strconv.FormatFloat(r.Fare, 'f', 2, 64),
	})
	if err != nil {
		log.Printf("[rides] cache ride %s: %v", r.ID, err)
	}
}

func (s *Service) dropSnapshot(ctx context.Context, rideID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DropCachedRide(ctx, rideID); err != nil {
		log.Printf("[rides] drop cached ride %s: %v", rideID, err)
	}
}

func (s *Service) publish(topic, key string, payload any) {
	if s.kafka == nil {
		return
	}
	go func() {
		if err := s.kafka.Publish(context.Background(), topic, key, payload); err != nil {
			log.Printf("[rides] failed to publish %s: %v", topic, err)
		}
	}()
}
