package realtime

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// safeConn wraps a websocket.Conn with a write mutex.
// gorilla/websocket allows one concurrent writer; this enforces that.
type safeConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *safeConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *safeConn) readMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

func (c *safeConn) close() { c.ws.Close() }

// Envelope is the wire format in both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// client is one authenticated websocket session.
type client struct {
	conn   *safeConn
	connID string
	userID string
	name   string
	role   string

	mu      sync.Mutex
	onDuty  bool
	vehicle string
	rooms   map[string]bool
}

func (c *client) send(event string, payload any) {
	if err := c.conn.writeJSON(Envelope{Event: event, Data: payload}); err != nil {
		log.Printf("[ws] write to %s: %v", c.userID, err)
	}
}

// Hub tracks connected clients: per-user channels, per-ride rooms and
// the on-duty driver group. It is the realtime fan-out surface the ride
// and dispatch services broadcast through.
type Hub struct {
	mu     sync.RWMutex
	byUser map[string][]*client
	rooms  map[string]map[*client]bool
	onDuty map[*client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		byUser: make(map[string][]*client),
		rooms:  make(map[string]map[*client]bool),
		onDuty: make(map[*client]bool),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byUser[c.userID] = append(h.byUser[c.userID], c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.byUser[c.userID]
	for i, other := range conns {
		if other == c {
			h.byUser[c.userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.byUser[c.userID]) == 0 {
		delete(h.byUser, c.userID)
	}
	delete(h.onDuty, c)
	for rideID := range c.rooms {
		h.leaveRoomLocked(rideID, c)
	}
}

func (h *Hub) joinRide(rideID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[rideID]
	if !ok {
		room = make(map[*client]bool)
		h.rooms[rideID] = room
	}
	room[c] = true

	c.mu.Lock()
	if c.rooms == nil {
		c.rooms = make(map[string]bool)
	}
	c.rooms[rideID] = true
	c.mu.Unlock()
}

func (h *Hub) leaveRoomLocked(rideID string, c *client) {
	if room, ok := h.rooms[rideID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, rideID)
		}
	}
}

func (h *Hub) setOnDuty(c *client, on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if on {
		h.onDuty[c] = true
	} else {
		delete(h.onDuty, c)
	}
}

// ToRide sends an event to every connection subscribed to a ride.
func (h *Hub) ToRide(rideID, event string, payload any) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[rideID]))
	for c := range h.rooms[rideID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(event, payload)
	}
}

// ToOnDuty sends an event to every on-duty driver connection.
func (h *Hub) ToOnDuty(event string, payload any) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.onDuty))
	for c := range h.onDuty {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(event, payload)
	}
}

// ToUser sends an event to every connection of one user.
func (h *Hub) ToUser(userID, event string, payload any) {
	h.mu.RLock()
	targets := append([]*client(nil), h.byUser[userID]...)
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(event, payload)
	}
}
