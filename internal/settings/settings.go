package settings

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/bascecoride/ecoride-server-deploy104/internal/fares"
	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
)

// Setting keys stored in app_settings.
const (
	KeySearchRadiusKm = "search.radius_km"

	KeyCapacityMotorcycle = "capacity.motorcycle"
	KeyCapacityTricycle   = "capacity.tricycle"
	KeyCapacityCab        = "capacity.cab"

	KeyFareMotorcycleMinimum = "fare.motorcycle.minimum"
	KeyFareMotorcyclePerKm   = "fare.motorcycle.per_km"
	KeyFareTricycleMinimum   = "fare.tricycle.minimum"
	KeyFareTricyclePerKm     = "fare.tricycle.per_km"
	KeyFareCabMinimum        = "fare.cab.minimum"
	KeyFareCabPerKm          = "fare.cab.per_km"
)

// DefaultSearchRadiusKm bounds driver matching when no override is stored.
const DefaultSearchRadiusKm = 3.0

// Store persists setting key/value pairs.
type Store interface {
	LoadAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

// Publisher fans a changed-key notice out to other nodes.
type Publisher interface {
	PublishSettingsChanged(ctx context.Context, key string) error
}

// Service keeps a typed in-memory view of runtime settings. Reads never
// touch the store; Reload refreshes the cache, either at startup or when
// an invalidation arrives over the settings channel.
type Service struct {
	store Store
	pub   Publisher

	mu     sync.RWMutex
	raw    map[string]string
	radius float64
	caps   map[vehicles.Type]int
	rates  map[vehicles.Type]fares.Rate
}

// NewService builds a Service over a Store. pub may be nil in single-node
// deployments and tests.
func NewService(store Store, pub Publisher) *Service {
	return &Service{
		store:  store,
		pub:    pub,
		raw:    map[string]string{},
		radius: DefaultSearchRadiusKm,
		caps:   copyCaps(vehicles.DefaultCapacity),
		rates:  copyRates(fares.DefaultRates),
	}
}

// Reload pulls all settings from the store and rebuilds the typed cache.
func (s *Service) Reload(ctx context.Context) error {
	raw, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}

	radius := DefaultSearchRadiusKm
	caps := copyCaps(vehicles.DefaultCapacity)
	rates := copyRates(fares.DefaultRates)

	if v, ok := parseFloat(raw, KeySearchRadiusKm); ok && v > 0 {
		radius = v
	}
	for vt, key := range map[vehicles.Type]string{
		vehicles.Motorcycle: KeyCapacityMotorcycle,
		vehicles.Tricycle:   KeyCapacityTricycle,
		vehicles.Cab:        KeyCapacityCab,
	} {
		if n, ok := parseInt(raw, key); ok && n > 0 {
			caps[vt] = n
		}
	}
	for vt, keys := range map[vehicles.Type][2]string{
		vehicles.Motorcycle: {KeyFareMotorcycleMinimum, KeyFareMotorcyclePerKm},
		vehicles.Tricycle:   {KeyFareTricycleMinimum, KeyFareTricyclePerKm},
		vehicles.Cab:        {KeyFareCabMinimum, KeyFareCabPerKm},
	} {
		r := rates[vt]
		if v, ok := parseFloat(raw, keys[0]); ok && v >= 0 {
			r.Minimum = v
		}
		if v, ok := parseFloat(raw, keys[1]); ok && v > 0 {
			r.PerKm = v
		}
		rates[vt] = r
	}

	s.mu.Lock()
	s.raw = raw
	s.radius = radius
	s.caps = caps
	s.rates = rates
	s.mu.Unlock()
	return nil
}

// Set writes one setting, refreshes the local cache and notifies peers.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	if err := s.Reload(ctx); err != nil {
		return err
	}
	if s.pub != nil {
		if err := s.pub.PublishSettingsChanged(ctx, key); err != nil {
			log.Printf("[settings] publish invalidation for %s: %v", key, err)
		}
	}
	return nil
}

// HandleInvalidation is wired as the settings-channel subscriber callback.
func (s *Service) HandleInvalidation(key string) {
	if err := s.Reload(context.Background()); err != nil {
		log.Printf("[settings] reload after invalidation of %s: %v", key, err)
	}
}

// SearchRadiusKm returns the matching radius in kilometres.
func (s *Service) SearchRadiusKm() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.radius
}

// Capacity returns the passenger capacity for a vehicle type.
func (s *Service) Capacity(vt vehicles.Type) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.caps[vt]; ok {
		return n
	}
	return vehicles.DefaultCapacity[vt]
}

// Rates returns the current fare rate table.
func (s *Service) Rates() map[vehicles.Type]fares.Rate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRates(s.rates)
}

// All returns the raw key/value map, for the admin listing endpoint.
func (s *Service) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.raw))
	for k, v := range s.raw {
		out[k] = v
	}
	return out
}

func parseFloat(raw map[string]string, key string) (float64, bool) {
	v, ok := raw[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[settings] bad float for %s: %q", key, v)
		return 0, false
	}
	return f, true
}

func parseInt(raw map[string]string, key string) (int, bool) {
	v, ok := raw[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[settings] bad int for %s: %q", key, v)
		return 0, false
	}
	return n, true
}

func copyCaps(in map[vehicles.Type]int) map[vehicles.Type]int {
	out := make(map[vehicles.Type]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyRates(in map[vehicles.Type]fares.Rate) map[vehicles.Type]fares.Rate {
	out := make(map[vehicles.Type]fares.Rate, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
