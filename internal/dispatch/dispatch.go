package dispatch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bascecoride/ecoride-server-deploy104/internal/events"
	"github.com/bascecoride/ecoride-server-deploy104/internal/observability"
	"github.com/bascecoride/ecoride-server-deploy104/internal/registry"
	"github.com/bascecoride/ecoride-server-deploy104/internal/rides"
	"github.com/bascecoride/ecoride-server-deploy104/internal/settings"
	"github.com/bascecoride/ecoride-server-deploy104/pkg/kafka"
)

// Retry schedule defaults: a ride stays searchable for 10 minutes.
const (
	DefaultInterval   = 10 * time.Second
	DefaultMaxRetries = 60
)

// Broadcaster is the slice of the realtime layer the dispatcher needs.
type Broadcaster interface {
	ToRide(rideID, event string, payload any)
	ToOnDuty(event string, payload any)
}

// Manager runs one retry/timeout controller per searching ride. The
// controller never trusts cached state: every tick re-reads the ride
// from the store, because acceptance can arrive through a different
// connection than the one that created the ride.
type Manager struct {
	store     rides.Store
	registry  *registry.Registry
	settings  *settings.Service
	broadcast Broadcaster
	kafka     *kafka.Client

	interval   time.Duration
	maxRetries int

	mu          sync.Mutex
	controllers map[string]*controller
}

// NewManager builds a Manager with the default 10 s / 60 retry schedule.
// kafka may be nil.
func NewManager(store rides.Store, reg *registry.Registry, st *settings.Service, b Broadcaster, k *kafka.Client) *Manager {
	return &Manager{
		store:       store,
		registry:    reg,
		settings:    st,
		broadcast:   b,
		kafka:       k,
		interval:    DefaultInterval,
		maxRetries:  DefaultMaxRetries,
		controllers: make(map[string]*controller),
	}
}

// WithSchedule overrides the retry schedule. Used in tests.
func (m *Manager) WithSchedule(interval time.Duration, maxRetries int) *Manager {
	m.interval = interval
	m.maxRetries = maxRetries
	return m
}

type controller struct {
	rideID   string
	stopOnce sync.Once
	stopCh   chan struct{}
}

func (c *controller) signalStop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Start launches the controller for a freshly created ride. Starting an
// already tracked ride is a no-op.
func (m *Manager) Start(r *rides.Ride) {
	m.mu.Lock()
	if _, ok := m.controllers[r.ID]; ok {
		m.mu.Unlock()
		return
	}
	c := &controller{rideID: r.ID, stopCh: make(chan struct{})}
	m.controllers[r.ID] = c
	m.mu.Unlock()

	observability.ActiveDispatchers.Inc()
	go m.run(c)
}

// Stop halts the ride's controller. Safe to call any number of times,
// from any of the accept/cancel/complete paths or the timeout itself.
func (m *Manager) Stop(rideID string) {
	m.mu.Lock()
	c, ok := m.controllers[rideID]
	if ok {
		delete(m.controllers, rideID)
	}
	m.mu.Unlock()
	if ok {
		c.signalStop()
		observability.ActiveDispatchers.Dec()
	}
}

// StopAll halts every controller, for shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	cs := make([]*controller, 0, len(m.controllers))
	for id, c := range m.controllers {
		cs = append(cs, c)
		delete(m.controllers, id)
	}
	m.mu.Unlock()
	for _, c := range cs {
		c.signalStop()
		observability.ActiveDispatchers.Dec()
	}
}

// Active reports how many controllers are running.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.controllers)
}

// Resume restarts controllers for every ride still searching, after a
// process restart.
func (m *Manager) Resume(ctx context.Context) error {
	searching, err := m.store.Searching(ctx)
	if err != nil {
		return err
	}
	for _, r := range searching {
		m.Start(r)
	}
	if len(searching) > 0 {
		log.Printf("[dispatch] resumed %d searching rides", len(searching))
	}
	return nil
}

func (m *Manager) run(c *controller) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	retries := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			done := m.tick(c, &retries)
			if done {
				return
			}
		}
	}
}

// tick performs one retry cycle and reports whether the controller is
// finished. Internal errors are logged and do not stop the loop.
func (m *Manager) tick(c *controller, retries *int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := m.store.Get(ctx, c.rideID)
	if err == rides.ErrNotFound {
		m.Stop(c.rideID)
		return true
	}
	if err != nil {
		log.Printf("[dispatch] re-read ride %s: %v", c.rideID, err)
		return false
	}
	if r.Status != rides.StatusSearching {
		// Another path already resolved the ride.
		m.Stop(c.rideID)
		return true
	}

	radiusM := m.settings.SearchRadiusKm() * 1000
	matches := m.registry.FindNearby(r.Pickup.Point, radiusM, r.Vehicle, r.BlacklistedRiders)
	if len(matches) == 0 {
		log.Printf("[dispatch] ride %s: no qualifying drivers (retry %d/%d)", r.ID, *retries+1, m.maxRetries)
	}

	*retries++
	if *retries < m.maxRetries {
		return false
	}
	return m.timeout(ctx, r, *retries)
}

// timeout finishes an exhausted ride. The conditional write doubles as
// the final status re-check: a ride accepted a moment ago matches zero
// rows and nothing fires.
func (m *Manager) timeout(ctx context.Context, r *rides.Ride, retries int) bool {
	ok, err := m.store.MarkTimedOut(ctx, r.ID)
	if err != nil {
		log.Printf("[dispatch] mark ride %s timed out: %v", r.ID, err)
		return false
	}
	m.Stop(r.ID)
	if !ok {
		return true
	}
	observability.RidesTimedOut.Inc()
	log.Printf("[dispatch] ride %s timed out after %d retries", r.ID, retries)

	payload := map[string]string{"ride_id": r.ID}
	m.broadcast.ToRide(r.ID, rides.EventRideTimeout, payload)
	m.broadcast.ToOnDuty(rides.EventRideTimeout, payload)

	if m.kafka != nil {
		go func() {
			ev := events.RideTimedOutEvent{
				RideID:     r.ID,
				Retries:    retries,
				TimedOutAt: time.Now().Format(time.RFC3339),
			}
			if err := m.kafka.Publish(context.Background(), kafka.TopicRideTimedOut, r.ID, ev); err != nil {
				log.Printf("[dispatch] failed to publish ride.timeout: %v", err)
			}
		}()
	}
	return true
}
