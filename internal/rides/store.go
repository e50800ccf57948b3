package rides

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists rides. Every transition method writes conditionally on
// the current status and reports whether a row actually changed, so
// concurrent callers race on the database instead of on locks.
type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id string) (*Ride, error)

	// Accept assigns the driver and moves SEARCHING → START. Returns
	// false when the ride is no longer searching or the driver is
	// blacklisted on it.
	Accept(ctx context.Context, rideID, riderID, riderName string) (bool, error)

	// SetStatus moves from → to. Returns false when the ride is not in
	// the from status anymore.
	SetStatus(ctx context.Context, rideID string, from, to Status) (bool, error)

	// MarkTimedOut moves SEARCHING → TIMEOUT.
	MarkTimedOut(ctx context.Context, rideID string) (bool, error)

	// Cancel moves any active status to CANCELLED and records who did it.
	Cancel(ctx context.Context, rideID, by, name, reason string) (bool, error)

	// ResetForRematch blacklists the declining driver and clears the
	// assignment while the ride keeps searching.
	ResetForRematch(ctx context.Context, rideID, riderID string) (bool, error)

	// SetPayment records the payment method on a completed ride.
	SetPayment(ctx context.Context, rideID, method string) (bool, error)

	ByParticipant(ctx context.Context, userID string) ([]*Ride, error)
	Searching(ctx context.Context) ([]*Ride, error)
}

const rideColumns = `
	id, vehicle,
	pickup_address, pickup_lat, pickup_lng, pickup_landmark,
	drop_address, drop_lat, drop_lng, drop_landmark,
	passengers, distance_km, fare,
	customer_id, customer_name, rider_id, rider_name,
	status, otp,
	cancelled_by, canceller_name, cancel_reason, cancelled_at,
	blacklisted_riders,
	payment_method, payment_confirmed_at,
	created_at, updated_at`

// PostgresStore is the production Store over the shared pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, r *Ride) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rides (
			id, vehicle,
			pickup_address, pickup_lat, pickup_lng, pickup_landmark,
			drop_address, drop_lat, drop_lng, drop_landmark,
			passengers, distance_km, fare,
			customer_id, customer_name, status, otp,
			blacklisted_riders, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		r.ID, r.Vehicle,
		r.Pickup.Address, r.Pickup.Point.Lat, r.Pickup.Point.Lng, r.Pickup.Landmark,
		r.Drop.Address, r.Drop.Point.Lat, r.Drop.Point.Lng, r.Drop.Landmark,
		r.Passengers, r.DistanceKm, r.Fare,
		r.CustomerID, r.CustomerName, r.Status, r.OTP,
		r.BlacklistedRiders, r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Ride, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) Accept(ctx context.Context, rideID, riderID, riderName string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rides SET rider_id=$1, rider_name=$2, status=$3, updated_at=NOW()
		WHERE id=$4 AND status=$5 AND NOT ($1 = ANY(blacklisted_riders))`,
		riderID, riderName, StatusStart, rideID, StatusSearching)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, rideID string, from, to Status) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rides SET status=$1, updated_at=NOW()
		WHERE id=$2 AND status=$3`,
		to, rideID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkTimedOut(ctx context.Context, rideID string) (bool, error) {
	return s.SetStatus(ctx, rideID, StatusSearching, StatusTimeout)
}

func (s *PostgresStore) Cancel(ctx context.Context, rideID, by, name, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rides SET status=$1, cancelled_by=$2, canceller_name=$3,
		                 cancel_reason=$4, cancelled_at=NOW(), updated_at=NOW()
		WHERE id=$5 AND status IN ($6,$7,$8)`,
		StatusCancelled, by, name, reason,
		rideID, StatusSearching, StatusStart, StatusArrived)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ResetForRematch(ctx context.Context, rideID, riderID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rides SET rider_id=NULL, rider_name=NULL,
		                 blacklisted_riders = array_append(blacklisted_riders, $1),
		                 updated_at=NOW()
		WHERE id=$2 AND status=$3 AND NOT ($1 = ANY(blacklisted_riders))`,
		riderID, rideID, StatusSearching)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetPayment(ctx context.Context, rideID, method string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rides SET payment_method=$1, payment_confirmed_at=NOW(), updated_at=NOW()
		WHERE id=$2 AND status=$3`,
		method, rideID, StatusCompleted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ByParticipant(ctx context.Context, userID string) ([]*Ride, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rideColumns+` FROM rides
		 WHERE customer_id=$1 OR rider_id=$1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRides(rows)
}

func (s *PostgresStore) Searching(ctx context.Context) ([]*Ride, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE status=$1 ORDER BY created_at`,
		StatusSearching)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRides(rows)
}

func scanRides(rows pgx.Rows) ([]*Ride, error) {
	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	err := row.Scan(
		&r.ID, &r.Vehicle,
		&r.Pickup.Address, &r.Pickup.Point.Lat, &r.Pickup.Point.Lng, &r.Pickup.Landmark,
		&r.Drop.Address, &r.Drop.Point.Lat, &r.Drop.Point.Lng, &r.Drop.Landmark,
		&r.Passengers, &r.DistanceKm, &r.Fare,
		&r.CustomerID, &r.CustomerName, &r.RiderID, &r.RiderName,
		&r.Status, &r.OTP,
		&r.CancelledBy, &r.CancellerName, &r.CancelReason, &r.CancelledAt,
		&r.BlacklistedRiders,
		&r.PaymentMethod, &r.PaymentConfirmedAt,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
