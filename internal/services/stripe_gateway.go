package services

import (
	"context"

	"ticket-marketplace/utils"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
)

// PaymentIntentCreator abstracts the provider call the checkout flow needs.
type PaymentIntentCreator interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGateway calls the Stripe API behind a circuit breaker so a provider
// outage fails checkouts fast instead of piling up blocked requests.
type StripeGateway struct {
	breaker *utils.CircuitBreaker
}

func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{
		breaker: utils.NewCircuitBreaker("stripe"),
	}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	params.Context = ctx

	var intent *stripe.PaymentIntent
	err := g.breaker.Execute(ctx, func() error {
		pi, err := paymentintent.New(params)
		if err != nil {
			return err
		}
		intent = pi
		return nil
	})
	return intent, err
}
