package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// IntentGetter is the slice of the Stripe SDK used here (*paymentintent.Client).
type IntentGetter interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// NewStripeClient builds a payment intents client with SDK-level retries off;
// retrying is done by the guard so the breaker sees every attempt.
func NewStripeClient(secretKey, apiURL string, timeout time.Duration) IntentGetter {
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if apiURL != "" {
		cfg.URL = stripe.String(apiURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	sc := client.New(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return sc.PaymentIntents
}

// Stripe settles iff the payment intent reports "succeeded".
type Stripe struct {
	intents IntentGetter
	guard   *guard
}

func NewStripe(intents IntentGetter, maxTries uint) *Stripe {
	return &Stripe{intents: intents, guard: newGuard("stripe", maxTries)}
}

func (s *Stripe) Method() Method { return MethodStripe }

func (s *Stripe) Verify(ctx context.Context, reference string) (Confirmation, error) {
	conf := Confirmation{Method: MethodStripe, Reference: reference}
	if reference == "" {
		return conf, nil
	}

	state, err := s.guard.lookup(ctx, func(ctx context.Context) (string, error) {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		pi, err := s.intents.Get(reference, params)
		if err != nil {
			var se *stripe.Error
			if errors.As(err, &se) && isRejection(se.HTTPStatusCode) {
				return "", fmt.Errorf("%w: %s", ErrReferenceUnknown, se.Msg)
			}
			return "", err
		}
		if pi == nil {
			return "", ErrReferenceUnknown
		}
		return string(pi.Status), nil
	})
	if errors.Is(err, ErrReferenceUnknown) {
		return conf, nil
	}
	if err != nil {
		return Confirmation{}, err
	}

	conf.State = state
	conf.Settled = state == string(stripe.PaymentIntentStatusSucceeded)
	return conf, nil
}

// 4xx is a definitive answer about the reference, except throttling and
// credential failures, which say nothing about it.
func isRejection(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusForbidden:
		return false
	}
	return code >= 400 && code < 500
}
