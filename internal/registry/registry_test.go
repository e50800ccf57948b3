package registry

import (
	"math"
	"testing"
	"time"

	"github.com/bascecoride/ecoride-server-deploy104/internal/geo"
	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
)

func presence(id string, lat, lng float64, v vehicles.Type) Presence {
	return Presence{
		DriverID: id,
		Name:     "Driver " + id,
		Vehicle:  v,
		Point:    geo.Point{Lat: lat, Lng: lng},
		ConnID:   "conn-" + id,
	}
}

func TestSetOnDutyAndOffDuty(t *testing.T) {
	r := New(time.Second)

	if !r.SetOnDuty(presence("d1", 14.0, 121.0, vehicles.Tricycle)) {
		t.Fatal("expected on-duty signal to be accepted")
	}
	if _, ok := r.Get("d1"); !ok {
		t.Fatal("expected d1 in registry")
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}

	r.SetOffDuty("d1")
	if _, ok := r.Get("d1"); ok {
		t.Fatal("expected d1 removed after off-duty")
	}
}

func TestSetOnDutyRejectsInvalidCoordinates(t *testing.T) {
	r := New(time.Second)
	p := presence("d1", math.NaN(), 121.0, vehicles.Cab)
	if r.SetOnDuty(p) {
		t.Fatal("expected NaN coordinates to be rejected")
	}
	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d entries", r.Count())
	}
}

func TestUpdateLocation(t *testing.T) {
	r := New(time.Second)
	r.SetOnDuty(presence("d1", 14.0, 121.0, vehicles.Cab))

	if !r.UpdateLocation("d1", geo.Point{Lat: 14.5, Lng: 121.5}, 90) {
		t.Fatal("expected update for known driver to succeed")
	}
	p, _ := r.Get("d1")
	if p.Point.Lat != 14.5 || p.Heading != 90 {
		t.Fatalf("location not updated: %+v", p)
	}

	if r.UpdateLocation("ghost", geo.Point{Lat: 14.0, Lng: 121.0}, 0) {
		t.Fatal("expected update for unknown driver to report absence")
	}
}

func TestFindNearby_FilterSortExclude(t *testing.T) {
	r := New(time.Second)
	origin := geo.Point{Lat: 14.0, Lng: 121.0}

	r.SetOnDuty(presence("near", 14.001, 121.0, vehicles.Tricycle))  // ~111 m
	r.SetOnDuty(presence("mid", 14.01, 121.0, vehicles.Tricycle))    // ~1.1 km
	r.SetOnDuty(presence("far", 14.5, 121.0, vehicles.Tricycle))     // ~55 km
	r.SetOnDuty(presence("wrongv", 14.001, 121.0, vehicles.Cab))     // close, wrong vehicle
	r.SetOnDuty(presence("banned", 14.0005, 121.0, vehicles.Tricycle)) // closest but excluded

	got := r.FindNearby(origin, 3000, vehicles.Tricycle, []string{"banned"})

	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].DriverID != "near" || got[1].DriverID != "mid" {
		t.Fatalf("expected [near mid] ascending, got [%s %s]", got[0].DriverID, got[1].DriverID)
	}
	for _, m := range got {
		if m.DistanceM > 3000 {
			t.Fatalf("driver %s beyond radius: %f m", m.DriverID, m.DistanceM)
		}
	}
}

func TestFindNearby_AnyVehicle(t *testing.T) {
	r := New(time.Second)
	r.SetOnDuty(presence("a", 14.001, 121.0, vehicles.Cab))
	r.SetOnDuty(presence("b", 14.002, 121.0, vehicles.Motorcycle))

	got := r.FindNearby(geo.Point{Lat: 14.0, Lng: 121.0}, 3000, "", nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches with no vehicle filter, got %d", len(got))
	}
}

func TestFindNearby_ZeroDistanceScenario(t *testing.T) {
	r := New(time.Second)
	r.SetOnDuty(presence("d1", 14.0, 121.0, vehicles.Tricycle))

	got := r.FindNearby(geo.Point{Lat: 14.0, Lng: 121.0}, 3000, vehicles.Tricycle, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if got[0].DistanceM > 1 {
		t.Fatalf("expected distance about zero, got %f m", got[0].DistanceM)
	}
}

func TestDisconnectGracePeriod_Evicts(t *testing.T) {
	r := New(30 * time.Millisecond)
	r.SetOnDuty(presence("d1", 14.0, 121.0, vehicles.Cab))

	r.MarkDisconnected("d1", "conn-d1")
	if _, ok := r.Get("d1"); !ok {
		t.Fatal("driver should survive until the grace window elapses")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := r.Get("d1"); ok {
		t.Fatal("driver should be evicted after the grace window")
	}
}

func TestDisconnectGracePeriod_ReconnectKeepsEntry(t *testing.T) {
	r := New(40 * time.Millisecond)
	r.SetOnDuty(presence("d1", 14.0, 121.0, vehicles.Cab))
	r.MarkDisconnected("d1", "conn-d1")

	// Reconnect with a fresh connection before the window closes.
	p := presence("d1", 14.0, 121.0, vehicles.Cab)
	p.ConnID = "conn-d1-new"
	r.SetOnDuty(p)

	time.Sleep(100 * time.Millisecond)
	got, ok := r.Get("d1")
	if !ok {
		t.Fatal("reconnected driver must not be evicted by the stale timer")
	}
	if got.ConnID != "conn-d1-new" {
		t.Fatalf("expected updated conn handle, got %s", got.ConnID)
	}
}

func TestMarkDisconnected_StaleConnIgnored(t *testing.T) {
	r := New(30 * time.Millisecond)
	p := presence("d1", 14.0, 121.0, vehicles.Cab)
	p.ConnID = "conn-new"
	r.SetOnDuty(p)

	// A disconnect notice from an older connection must not start eviction.
	r.MarkDisconnected("d1", "conn-old")
	time.Sleep(80 * time.Millisecond)
	if _, ok := r.Get("d1"); !ok {
		t.Fatal("driver evicted by a stale connection's disconnect")
	}
}
