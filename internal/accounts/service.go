package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
	"github.com/bascecoride/ecoride-server-deploy104/pkg/jwt"
	"github.com/bascecoride/ecoride-server-deploy104/pkg/validation"
)

// Service contains account business logic.
type Service struct {
	db *pgxpool.Pool
}

// NewService creates an account service backed by the given pool.
func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// Register creates a customer or rider account and returns a JWT.
// Riders must declare a vehicle type; it is what matching filters on.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if req.Role != RoleCustomer && req.Role != RoleRider {
		return nil, errors.New("role must be customer or rider")
	}
	if !validation.ValidateName(req.Name) {
		return nil, errors.New("invalid name")
	}
	if !validation.ValidateEmail(req.Email) {
		return nil, errors.New("invalid email")
	}
	if !validation.ValidatePhone(req.Phone) {
		return nil, errors.New("invalid phone")
	}
	if !validation.ValidatePassword(req.Password) {
		return nil, errors.New("password must be at least 6 characters")
	}

	var vt *string
	var plate *string
	if req.Role == RoleRider {
		parsed, err := vehicles.Parse(req.VehicleType)
		if err != nil {
			return nil, err
		}
		v := string(parsed)
		vt = &v
		if req.LicensePlate != "" {
			plate = &req.LicensePlate
		}
	}

	var exists bool
	_ = s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)", req.Email).Scan(&exists)
	if exists {
		return nil, errors.New("email already exists")
	}
	_ = s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE phone=$1)", req.Phone).Scan(&exists)
	if exists {
		return nil, errors.New("phone already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	_, err = s.db.Exec(ctx,
		`INSERT INTO users (id,role,name,email,phone,password_hash,vehicle_type,license_plate,rating)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,5.0)`,
		id, req.Role, req.Name, req.Email, req.Phone, string(hash), vt, plate)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Generate(id, req.Email, req.Name, req.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token: token,
		User: &User{
			ID: id, Role: req.Role, Name: req.Name, Email: req.Email, Phone: req.Phone,
			VehicleType: vt, LicensePlate: plate, Rating: 5.0,
		},
	}, nil
}

// Login authenticates an account and returns a JWT.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var u User
	var hash string
	err := s.db.QueryRow(ctx,
		`SELECT id,role,name,email,phone,password_hash,vehicle_type,license_plate,rating,created_at
		 FROM users WHERE email=$1`, req.Email).
		Scan(&u.ID, &u.Role, &u.Name, &u.Email, &u.Phone, &hash,
			&u.VehicleType, &u.LicensePlate, &u.Rating, &u.CreatedAt)
	if err != nil {
		return nil, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		return nil, errors.New("invalid credentials")
	}

	token, err := jwt.Generate(u.ID, u.Email, u.Name, u.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: &u}, nil
}

// GetByID fetches a single account by primary key.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx,
		`SELECT id,role,name,email,phone,vehicle_type,license_plate,rating,created_at
		 FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Role, &u.Name, &u.Email, &u.Phone,
			&u.VehicleType, &u.LicensePlate, &u.Rating, &u.CreatedAt)
	if err != nil {
		return nil, errors.New("user not found")
	}
	return &u, nil
}

// VehicleOf resolves the vehicle type on a rider account. The session
// layer calls this when a driver goes on duty.
func (s *Service) VehicleOf(ctx context.Context, userID string) (vehicles.Type, error) {
	var vt *string
	err := s.db.QueryRow(ctx, `SELECT vehicle_type FROM users WHERE id=$1 AND role=$2`,
		userID, RoleRider).Scan(&vt)
	if err != nil || vt == nil {
		return "", errors.New("rider has no registered vehicle")
	}
	return vehicles.Parse(*vt)
}
