package checkout

import (
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
)

// SessionClient is the slice of the Stripe API the service needs.
// Tests substitute a fake.
type SessionClient interface {
	Create(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Retrieve(id string) (*stripe.CheckoutSession, error)
}

type stripeClient struct{}

// NewStripeClient configures the global Stripe key and returns a
// client backed by the real API.
func NewStripeClient(secretKey string) SessionClient {
	stripe.Key = secretKey
	return stripeClient{}
}

func (stripeClient) Create(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (stripeClient) Retrieve(id string) (*stripe.CheckoutSession, error) {
	return session.Get(id, nil)
}
