package payments

import (
	"context"
	"fmt"
	"math"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/bascecoride/ecoride-server-deploy104/internal/rides"
)

// StripeCharger captures non-cash ride payments through stripe
// PaymentIntents. It satisfies the ride service's Charger.
type StripeCharger struct{}

// NewStripeCharger initialises the stripe client with the given API key.
// Returns nil when no key is configured; the caller treats a nil charger
// as cash-only mode.
func NewStripeCharger(apiKey string) *StripeCharger {
	if apiKey == "" {
		return nil
	}
	stripe.Key = apiKey
	return &StripeCharger{}
}

// Charge creates and auto-confirms a PaymentIntent for the ride fare.
// Amounts are in centavos; PHP is a two-decimal currency.
func (s *StripeCharger) Charge(ctx context.Context, r *rides.Ride, method string) error {
	amount := int64(math.Round(r.Fare * 100))
	if amount <= 0 {
		return fmt.Errorf("ride %s has no chargeable fare", r.ID)
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String("php"),
		Description: stripe.String(
			fmt.Sprintf("ecoride %s (%s, %.2f km)", r.ID, method, r.DistanceKm)),
	}
	params.AddMetadata("ride_id", r.ID)
	params.AddMetadata("customer_id", r.CustomerID)
	params.AddMetadata("method", method)

	_, err := paymentintent.New(params)
	return err
}
