package rides

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same conditional-write
// semantics as PostgresStore. Used in tests and local runs without a
// database.
type MemoryStore struct {
	mu    sync.Mutex
	rides map[string]*Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: map[string]*Ride{}}
}

func (s *MemoryStore) Create(_ context.Context, r *Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rides[r.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.BlacklistedRiders = append([]string(nil), r.BlacklistedRiders...)
	return &cp, nil
}

func (s *MemoryStore) Accept(_ context.Context, rideID, riderID, riderName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok || r.Status != StatusSearching || r.Blacklisted(riderID) {
		return false, nil
	}
	id, name := riderID, riderName
	r.RiderID = &id
	r.RiderName = &name
	r.Status = StatusStart
	r.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, rideID string, from, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) MarkTimedOut(ctx context.Context, rideID string) (bool, error) {
	return s.SetStatus(ctx, rideID, StatusSearching, StatusTimeout)
}

func (s *MemoryStore) Cancel(_ context.Context, rideID, by, name, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok {
		return false, nil
	}
	switch r.Status {
	case StatusSearching, StatusStart, StatusArrived:
	default:
		return false, nil
	}
	now := time.Now()
	b, n, rs := by, name, reason
	r.Status = StatusCancelled
	r.CancelledBy = &b
	r.CancellerName = &n
	r.CancelReason = &rs
	r.CancelledAt = &now
	r.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) ResetForRematch(_ context.Context, rideID, riderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok || r.Status != StatusSearching || r.Blacklisted(riderID) {
		return false, nil
	}
	r.BlacklistedRiders = append(r.BlacklistedRiders, riderID)
	r.RiderID = nil
	r.RiderName = nil
	r.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) SetPayment(_ context.Context, rideID, method string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok || r.Status != StatusCompleted {
		return false, nil
	}
	now := time.Now()
	m := method
	r.PaymentMethod = &m
	r.PaymentConfirmedAt = &now
	r.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) ByParticipant(_ context.Context, userID string) ([]*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Ride
	for _, r := range s.rides {
		if r.CustomerID == userID || (r.RiderID != nil && *r.RiderID == userID) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Searching(_ context.Context) ([]*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Ride
	for _, r := range s.rides {
		if r.Status == StatusSearching {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
