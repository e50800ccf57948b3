package settings

import (
	"context"
	"testing"

	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
)

type recordingPublisher struct {
	keys []string
}

func (p *recordingPublisher) PublishSettingsChanged(_ context.Context, key string) error {
	p.keys = append(p.keys, key)
	return nil
}

func TestDefaults(t *testing.T) {
	s := NewService(NewMemoryStore(), nil)

	if got := s.SearchRadiusKm(); got != DefaultSearchRadiusKm {
		t.Fatalf("radius = %v, want %v", got, DefaultSearchRadiusKm)
	}
	if got := s.Capacity(vehicles.Motorcycle); got != 1 {
		t.Fatalf("motorcycle capacity = %d, want 1", got)
	}
	if got := s.Capacity(vehicles.Tricycle); got != 3 {
		t.Fatalf("tricycle capacity = %d, want 3", got)
	}
	if got := s.Capacity(vehicles.Cab); got != 4 {
		t.Fatalf("cab capacity = %d, want 4", got)
	}
	if got := s.Rates()[vehicles.Cab]; got.Minimum != 30 || got.PerKm != 3.0 {
		t.Fatalf("cab rate = %+v", got)
	}
}

func TestSetUpdatesCacheAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewService(NewMemoryStore(), pub)
	ctx := context.Background()

	if err := s.Set(ctx, KeySearchRadiusKm, "5.5"); err != nil {
		t.Fatal(err)
	}
	if got := s.SearchRadiusKm(); got != 5.5 {
		t.Fatalf("radius = %v, want 5.5", got)
	}

	if err := s.Set(ctx, KeyCapacityTricycle, "4"); err != nil {
		t.Fatal(err)
	}
	if got := s.Capacity(vehicles.Tricycle); got != 4 {
		t.Fatalf("tricycle capacity = %d, want 4", got)
	}

	if err := s.Set(ctx, KeyFareCabPerKm, "3.5"); err != nil {
		t.Fatal(err)
	}
	if got := s.Rates()[vehicles.Cab].PerKm; got != 3.5 {
		t.Fatalf("cab per-km = %v, want 3.5", got)
	}

	if len(pub.keys) != 3 {
		t.Fatalf("published %d invalidations, want 3: %v", len(pub.keys), pub.keys)
	}
}

func TestReloadIgnoresMalformedValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Set(ctx, KeySearchRadiusKm, "not-a-number")
	_ = store.Set(ctx, KeyCapacityCab, "-2")

	s := NewService(store, nil)
	if err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.SearchRadiusKm(); got != DefaultSearchRadiusKm {
		t.Fatalf("radius = %v, want default after bad value", got)
	}
	if got := s.Capacity(vehicles.Cab); got != 4 {
		t.Fatalf("cab capacity = %d, want default after non-positive value", got)
	}
}

func TestHandleInvalidationReloads(t *testing.T) {
	store := NewMemoryStore()
	s := NewService(store, nil)

	// Simulate another node writing directly to the store.
	_ = store.Set(context.Background(), KeySearchRadiusKm, "7")
	s.HandleInvalidation(KeySearchRadiusKm)

	if got := s.SearchRadiusKm(); got != 7 {
		t.Fatalf("radius = %v, want 7 after invalidation", got)
	}
}
