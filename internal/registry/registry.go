// Package registry holds the in-memory set of on-duty drivers eligible
// for dispatch and answers proximity queries against it.
//
// Presence is deliberately not persisted: on a process restart drivers
// must signal on-duty again over their reconnected socket.
package registry

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/bascecoride/ecoride-server-deploy104/internal/geo"
	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
)

// Presence is one on-duty driver's ephemeral state.
type Presence struct {
	DriverID  string        `json:"driver_id"`
	Name      string        `json:"name"`
	Vehicle   vehicles.Type `json:"vehicle"`
	Point     geo.Point     `json:"coords"`
	Heading   float64       `json:"heading"`
	ConnID    string        `json:"-"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Match is a presence annotated with its distance from a query origin.
type Match struct {
	Presence
	DistanceM float64 `json:"distance_m"`
}

// Registry is safe for concurrent use by every connection handler.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Presence
	evicts  map[string]*time.Timer
	grace   time.Duration
}

// New creates a registry whose disconnect eviction waits for grace
// before dropping a driver, absorbing transient reconnects.
func New(grace time.Duration) *Registry {
	return &Registry{
		drivers: make(map[string]Presence),
		evicts:  make(map[string]*time.Timer),
		grace:   grace,
	}
}

// SetOnDuty upserts a presence record. Invalid coordinates are dropped
// silently apart from a log line, matching how location pings from
// half-initialised clients are treated.
func (r *Registry) SetOnDuty(p Presence) bool {
	if !p.Point.Valid() {
		log.Printf("[registry] dropping on-duty signal from %s: invalid coordinates", p.DriverID)
		return false
	}
	p.UpdatedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelEvictionLocked(p.DriverID)
	r.drivers[p.DriverID] = p
	return true
}

// UpdateLocation mutates a known driver's coordinates in place. It
// reports false when the driver has no registry entry; the session layer
// uses that to re-insert drivers that are still in the on-duty broadcast
// group but were lost to connection churn.
func (r *Registry) UpdateLocation(driverID string, pt geo.Point, heading float64) bool {
	if !pt.Valid() {
		log.Printf("[registry] dropping location update from %s: invalid coordinates", driverID)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.drivers[driverID]
	if !ok {
		return false
	}
	p.Point = pt
	p.Heading = heading
	p.UpdatedAt = time.Now()
	r.drivers[driverID] = p
	return true
}

// SetOffDuty removes the driver immediately.
func (r *Registry) SetOffDuty(driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelEvictionLocked(driverID)
	delete(r.drivers, driverID)
}

// Get returns the driver's presence, if any.
func (r *Registry) Get(driverID string) (Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.drivers[driverID]
	return p, ok
}

// Count returns the number of on-duty drivers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.drivers)
}

// MarkDisconnected schedules eviction of the driver after the grace
// window, unless the same driver shows up again first (SetOnDuty or a
// reconnect with a fresh conn id cancels the timer). The connID guard
// ensures a reconverged session is never evicted by its dead
// predecessor's timer.
func (r *Registry) MarkDisconnected(driverID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.drivers[driverID]
	if !ok || p.ConnID != connID {
		return
	}
	r.cancelEvictionLocked(driverID)
	r.evicts[driverID] = time.AfterFunc(r.grace, func() {
		r.evict(driverID, connID)
	})
}

func (r *Registry) evict(driverID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.drivers[driverID]
	if !ok || p.ConnID != connID {
		return // reconnected inside the grace window
	}
	delete(r.drivers, driverID)
	delete(r.evicts, driverID)
	log.Printf("[registry] evicted %s after disconnect grace period", driverID)
}

func (r *Registry) cancelEvictionLocked(driverID string) {
	if t, ok := r.evicts[driverID]; ok {
		t.Stop()
		delete(r.evicts, driverID)
	}
}

// FindNearby scans every presence, filters by vehicle type (empty means
// any), a maximum radius in metres and an exclusion set, and returns the
// matches sorted nearest-first. A full scan is intentional: the on-duty
// set is small, and the contract would survive a spatial index if it
// ever has to grow.
func (r *Registry) FindNearby(origin geo.Point, maxRadiusM float64, vehicle vehicles.Type, exclude []string) []Match {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	r.mu.RLock()
	out := make([]Match, 0, len(r.drivers))
	for _, p := range r.drivers {
		if _, skip := excluded[p.DriverID]; skip {
			continue
		}
		if vehicle != "" && p.Vehicle != vehicle {
			continue
		}
		if !p.Point.Valid() {
			continue
		}
		d := geo.DistanceMeters(origin, p.Point)
		if d > maxRadiusM {
			continue
		}
		out = append(out, Match{Presence: p, DistanceM: d})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	return out
}
