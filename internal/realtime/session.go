package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bascecoride/ecoride-server-deploy104/internal/geo"
	"github.com/bascecoride/ecoride-server-deploy104/internal/observability"
	"github.com/bascecoride/ecoride-server-deploy104/internal/registry"
	"github.com/bascecoride/ecoride-server-deploy104/internal/rides"
	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
	"github.com/bascecoride/ecoride-server-deploy104/pkg/jwt"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Error codes sent with the error event.
const (
	CodeValidation = "validation"
	CodeState      = "state"
	CodeNotFound   = "not_found"
	CodeTransient  = "transient"
)

// VehicleLookup resolves the vehicle type registered on a driver account.
type VehicleLookup interface {
	VehicleOf(ctx context.Context, userID string) (vehicles.Type, error)
}

// Session owns the websocket endpoint: it authenticates connections,
// routes inbound events to the ride service and presence registry, and
// tears presence down when a connection drops.
type Session struct {
	hub      *Hub
	rides    *rides.Service
	registry *registry.Registry
	vehicles VehicleLookup
}

// NewSession wires the websocket session layer.
func NewSession(hub *Hub, svc *rides.Service, reg *registry.Registry, vl VehicleLookup) *Session {
	return &Session{hub: hub, rides: svc, registry: reg, vehicles: vl}
}

// Routes returns a chi.Router for the /ws mount point.
func (s *Session) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.HandleWS)
	return r
}

// HandleWS authenticates via the token query parameter and runs the
// read loop until the client disconnects.
func (s *Session) HandleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := jwt.Validate(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	c := &client{
		conn:   &safeConn{ws: ws},
		connID: uuid.New().String(),
		userID: claims.UserID,
		name:   claims.Name,
		role:   claims.Role,
		rooms:  make(map[string]bool),
	}
	s.hub.register(c)
	observability.OpenConnections.Inc()
	log.Printf("[ws] %s connected (%s)", c.userID, c.role)

	for {
		_, raw, err := c.conn.readMessage()
		if err != nil {
			break
		}
		s.handle(r.Context(), c, raw)
	}

	s.disconnect(c)
}

func (s *Session) disconnect(c *client) {
	s.hub.unregister(c)
	observability.OpenConnections.Dec()

	c.mu.Lock()
	wasOnDuty := c.onDuty
	c.mu.Unlock()
	if wasOnDuty {
		// Grace-period eviction; a quick reconnect keeps the driver
		// matchable.
		s.registry.MarkDisconnected(c.userID, c.connID)
	}
	c.conn.close()
	log.Printf("[ws] %s disconnected", c.userID)
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type locationPayload struct {
	Lat     float64 `json:"latitude"`
	Lng     float64 `json:"longitude"`
	Heading float64 `json:"heading"`
}

type ridePayload struct {
	RideID string `json:"ride_id"`
	Status string `json:"status"`
	Reason string `json:"reason"`
	Method string `json:"method"`
}

type nearbyPayload struct {
	Lat     float64 `json:"latitude"`
	Lng     float64 `json:"longitude"`
	Vehicle string  `json:"vehicle"`
}

func (s *Session) handle(ctx context.Context, c *client, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		s.sendError(c, CodeValidation, "malformed message")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch in.Event {
	case "duty:on":
		s.onDutyOn(ctx, c, in.Data)
	case "duty:off":
		s.onDutyOff(c)
	case "location:update":
		s.onLocation(c, in.Data)
	case "ride:create":
		s.onRideCreate(ctx, c, in.Data)
	case "ride:accept":
		s.onRideAccept(ctx, c, in.Data)
	case "ride:status":
		s.onRideStatus(ctx, c, in.Data)
	case "ride:cancel":
		s.onRideCancel(ctx, c, in.Data)
	case "ride:payment":
		s.onRidePayment(ctx, c, in.Data)
	case "drivers:nearby":
		s.onNearby(c, in.Data)
	default:
		s.sendError(c, CodeValidation, "unknown event "+in.Event)
	}
}

func (s *Session) onDutyOn(ctx context.Context, c *client, data json.RawMessage) {
	if c.role != rides.RoleRider {
		s.sendError(c, CodeValidation, "only drivers go on duty")
		return
	}
	var loc locationPayload
	if err := json.Unmarshal(data, &loc); err != nil {
		s.sendError(c, CodeValidation, "bad location payload")
		return
	}

	vt, err := s.vehicles.VehicleOf(ctx, c.userID)
	if err != nil {
		s.sendError(c, CodeTransient, "could not load your vehicle type")
		return
	}

	ok := s.registry.SetOnDuty(registry.Presence{
		DriverID: c.userID,
		Name:     c.name,
		Vehicle:  vt,
		Point:    geo.Point{Lat: loc.Lat, Lng: loc.Lng},
		Heading:  loc.Heading,
		ConnID:   c.connID,
	})
	if !ok {
		s.sendError(c, CodeValidation, "invalid coordinates")
		return
	}

	c.mu.Lock()
	c.onDuty = true
	c.vehicle = string(vt)
	c.mu.Unlock()
	s.hub.setOnDuty(c, true)
	observability.OnDutyDrivers.Set(float64(s.registry.Count()))
	c.send("duty:on", map[string]string{"vehicle": string(vt)})
}

func (s *Session) onDutyOff(c *client) {
	s.registry.SetOffDuty(c.userID)
	s.hub.setOnDuty(c, false)
	c.mu.Lock()
	c.onDuty = false
	c.mu.Unlock()
	observability.OnDutyDrivers.Set(float64(s.registry.Count()))
	c.send("duty:off", nil)
}

func (s *Session) onLocation(c *client, data json.RawMessage) {
	var loc locationPayload
	if err := json.Unmarshal(data, &loc); err != nil {
		s.sendError(c, CodeValidation, "bad location payload")
		return
	}
	pt := geo.Point{Lat: loc.Lat, Lng: loc.Lng}
	if !pt.Valid() {
		s.sendError(c, CodeValidation, "invalid coordinates")
		return
	}

	if !s.registry.UpdateLocation(c.userID, pt, loc.Heading) {
		c.mu.Lock()
		onDuty, vt := c.onDuty, c.vehicle
		c.mu.Unlock()
		if !onDuty {
			return
		}
		// The registry lost this driver (restart or eviction race);
		// re-insert from the session's own view.
		s.registry.SetOnDuty(registry.Presence{
			DriverID: c.userID,
			Name:     c.name,
			Vehicle:  vehicles.Type(vt),
			Point:    pt,
			Heading:  loc.Heading,
			ConnID:   c.connID,
		})
	}

	// Riders in this driver's active ride rooms see the movement live.
	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()
	for _, rideID := range rooms {
		s.hub.ToRide(rideID, "driver:location", map[string]any{
			"ride_id":   rideID,
			"latitude":  loc.Lat,
			"longitude": loc.Lng,
			"heading":   loc.Heading,
		})
	}
}

func (s *Session) onRideCreate(ctx context.Context, c *client, data json.RawMessage) {
	if c.role != rides.RoleCustomer {
		s.sendError(c, CodeValidation, "only customers create rides")
		return
	}
	var req rides.CreateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(c, CodeValidation, "bad ride payload")
		return
	}
	r, err := s.rides.Create(ctx, s.actor(c), req)
	if err != nil {
		s.sendError(c, CodeValidation, err.Error())
		return
	}
	s.hub.joinRide(r.ID, c)
	c.send(rides.EventRideNew, r)
}

func (s *Session) onRideAccept(ctx context.Context, c *client, data json.RawMessage) {
	if c.role != rides.RoleRider {
		s.sendError(c, CodeValidation, "only drivers accept rides")
		return
	}
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendError(c, CodeValidation, "bad payload")
		return
	}

	c.mu.Lock()
	vt := c.vehicle
	c.mu.Unlock()
	if vt == "" {
		loaded, err := s.vehicles.VehicleOf(ctx, c.userID)
		if err != nil {
			s.sendError(c, CodeTransient, "could not load your vehicle type")
			return
		}
		vt = string(loaded)
	}

	r, err := s.rides.Accept(ctx, p.RideID, s.actor(c), vehicles.Type(vt))
	if err != nil {
		s.sendRideError(c, err)
		return
	}
	s.hub.joinRide(r.ID, c)
}

func (s *Session) onRideStatus(ctx context.Context, c *client, data json.RawMessage) {
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendError(c, CodeValidation, "bad payload")
		return
	}
	if _, err := s.rides.UpdateStatus(ctx, p.RideID, s.actor(c), rides.Status(p.Status)); err != nil {
		s.sendRideError(c, err)
	}
}

func (s *Session) onRideCancel(ctx context.Context, c *client, data json.RawMessage) {
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendError(c, CodeValidation, "bad payload")
		return
	}
	if _, err := s.rides.Cancel(ctx, p.RideID, s.actor(c), p.Reason); err != nil {
		s.sendRideError(c, err)
	}
}

func (s *Session) onRidePayment(ctx context.Context, c *client, data json.RawMessage) {
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendError(c, CodeValidation, "bad payload")
		return
	}
	if _, err := s.rides.ConfirmPayment(ctx, p.RideID, s.actor(c), p.Method); err != nil {
		s.sendRideError(c, err)
	}
}

func (s *Session) onNearby(c *client, data json.RawMessage) {
	var p nearbyPayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendError(c, CodeValidation, "bad payload")
		return
	}
	origin := geo.Point{Lat: p.Lat, Lng: p.Lng}
	if !origin.Valid() {
		s.sendError(c, CodeValidation, "invalid coordinates")
		return
	}
	matches := s.rides.NearbyDrivers(origin, vehicles.Type(p.Vehicle))
	c.send("drivers:nearby", matches)
}

func (s *Session) actor(c *client) rides.Actor {
	return rides.Actor{ID: c.userID, Name: c.name, Role: c.role}
}

func (s *Session) sendError(c *client, code, msg string) {
	c.send("error", map[string]string{"code": code, "message": msg})
}

// sendRideError maps service errors to protocol error codes.
func (s *Session) sendRideError(c *client, err error) {
	var vm *rides.VehicleMismatchError
	var tf *rides.TooFarError
	switch {
	case errors.Is(err, rides.ErrNotFound):
		s.sendError(c, CodeNotFound, err.Error())
	case errors.Is(err, rides.ErrPresenceSync):
		s.sendError(c, CodeTransient, err.Error())
	case errors.Is(err, rides.ErrRideUnavailable),
		errors.Is(err, rides.ErrInvalidStatus),
		errors.As(err, &vm),
		errors.As(err, &tf):
		s.sendError(c, CodeState, err.Error())
	case errors.Is(err, rides.ErrNotParticipant),
		errors.Is(err, rides.ErrInvalidPayment):
		s.sendError(c, CodeValidation, err.Error())
	default:
		log.Printf("[ws] internal error for %s: %v", c.userID, err)
		s.sendError(c, CodeTransient, "internal error, please retry")
	}
}
