package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bascecoride/ecoride-server-deploy104/internal/geo"
	"github.com/bascecoride/ecoride-server-deploy104/internal/registry"
	"github.com/bascecoride/ecoride-server-deploy104/internal/rides"
	"github.com/bascecoride/ecoride-server-deploy104/internal/settings"
	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
)

type countingBroadcaster struct {
	mu       sync.Mutex
	timeouts int
}

func (b *countingBroadcaster) ToRide(_, event string, _ any) {
	if event == rides.EventRideTimeout {
		b.mu.Lock()
		b.timeouts++
		b.mu.Unlock()
	}
}
func (b *countingBroadcaster) ToOnDuty(event string, _ any) {}

func (b *countingBroadcaster) timeoutCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeouts
}

func searchingRide(t *testing.T, store rides.Store) *rides.Ride {
	t.Helper()
	r := &rides.Ride{
		ID:      "ride-1",
		Vehicle: vehicles.Tricycle,
		Pickup: rides.Stop{
			Address: "pickup",
			Point:   geo.Point{Lat: 14.0, Lng: 121.0},
		},
		Status:            rides.StatusSearching,
		CustomerID:        "cust-1",
		BlacklistedRiders: []string{},
		CreatedAt:         time.Now(),
	}
	if err := store.Create(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	return r
}

func newManager(store rides.Store, b Broadcaster, interval time.Duration, maxRetries int) *Manager {
	reg := registry.New(time.Second)
	st := settings.NewService(settings.NewMemoryStore(), nil)
	return NewManager(store, reg, st, b, nil).WithSchedule(interval, maxRetries)
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestTimeoutFiresOnceAfterBudget(t *testing.T) {
	store := rides.NewMemoryStore()
	b := &countingBroadcaster{}
	m := newManager(store, b, 10*time.Millisecond, 3)
	r := searchingRide(t, store)

	m.Start(r)
	waitFor(t, 2*time.Second, func() bool {
		got, _ := store.Get(context.Background(), r.ID)
		return got.Status == rides.StatusTimeout
	})

	if m.Active() != 0 {
		t.Errorf("controller still active after timeout")
	}
	time.Sleep(50 * time.Millisecond)
	if n := b.timeoutCount(); n != 1 {
		t.Errorf("timeout broadcast %d times, want exactly 1", n)
	}
}

func TestAcceptedRideStopsWithoutTimeout(t *testing.T) {
	store := rides.NewMemoryStore()
	b := &countingBroadcaster{}
	m := newManager(store, b, 10*time.Millisecond, 5)
	r := searchingRide(t, store)

	m.Start(r)
	if _, err := store.Accept(context.Background(), r.ID, "drv-1", "Ben"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool { return m.Active() == 0 })
	got, _ := store.Get(context.Background(), r.ID)
	if got.Status != rides.StatusStart {
		t.Fatalf("status = %s, want %s", got.Status, rides.StatusStart)
	}
	if b.timeoutCount() != 0 {
		t.Error("timeout fired for an accepted ride")
	}
}

func TestAcceptOnFinalCycleWinsOverTimeout(t *testing.T) {
	// Acceptance that lands between the budget check and the terminal
	// write must win: the conditional update matches zero rows.
	store := rides.NewMemoryStore()
	b := &countingBroadcaster{}
	m := newManager(store, b, 10*time.Millisecond, 1)
	r := searchingRide(t, store)

	if _, err := store.Accept(context.Background(), r.ID, "drv-1", "Ben"); err != nil {
		t.Fatal(err)
	}
	m.Start(r)

	waitFor(t, 2*time.Second, func() bool { return m.Active() == 0 })
	got, _ := store.Get(context.Background(), r.ID)
	if got.Status != rides.StatusStart {
		t.Fatalf("status = %s, accepted ride must never time out", got.Status)
	}
	if b.timeoutCount() != 0 {
		t.Error("timeout broadcast despite acceptance")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	store := rides.NewMemoryStore()
	m := newManager(store, &countingBroadcaster{}, 10*time.Millisecond, 100)
	r := searchingRide(t, store)

	m.Start(r)
	m.Stop(r.ID)
	m.Stop(r.ID)
	m.Stop(r.ID)
	if m.Active() != 0 {
		t.Error("controller still tracked after Stop")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	store := rides.NewMemoryStore()
	m := newManager(store, &countingBroadcaster{}, time.Hour, 100)
	r := searchingRide(t, store)

	m.Start(r)
	m.Start(r)
	if m.Active() != 1 {
		t.Fatalf("active = %d, want 1", m.Active())
	}
	m.StopAll()
	if m.Active() != 0 {
		t.Error("controllers remain after StopAll")
	}
}

func TestResumeRestartsSearchingRides(t *testing.T) {
	store := rides.NewMemoryStore()
	m := newManager(store, &countingBroadcaster{}, time.Hour, 100)
	searchingRide(t, store)

	done := &rides.Ride{
		ID:         "ride-2",
		Status:     rides.StatusCompleted,
		CustomerID: "cust-2",
		CreatedAt:  time.Now(),
	}
	if err := store.Create(context.Background(), done); err != nil {
		t.Fatal(err)
	}

	if err := m.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.Active() != 1 {
		t.Fatalf("active = %d, want only the searching ride resumed", m.Active())
	}
	m.StopAll()
}
