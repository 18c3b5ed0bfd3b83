package payment

import (
	"context"
	"errors"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	rzperrors "github.com/razorpay/razorpay-go/errors"
)

// PaymentFetcher is the slice of the Razorpay SDK used here (*resources.Payment).
type PaymentFetcher interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

func NewRazorpayClient(keyID, keySecret string) PaymentFetcher {
	return razorpay.NewClient(keyID, keySecret).Payment
}

// Razorpay settles iff the payment reports "captured".
type Razorpay struct {
	payments PaymentFetcher
	guard    *guard
}

func NewRazorpay(payments PaymentFetcher, maxTries uint) *Razorpay {
	return &Razorpay{payments: payments, guard: newGuard("razorpay", maxTries)}
}

func (r *Razorpay) Method() Method { return MethodRazorpay }

func (r *Razorpay) Verify(ctx context.Context, reference string) (Confirmation, error) {
	conf := Confirmation{Method: MethodRazorpay, Reference: reference}
	if reference == "" {
		return conf, nil
	}

	state, err := r.guard.lookup(ctx, func(ctx context.Context) (string, error) {
		return r.fetchStatus(ctx, reference)
	})
	if errors.Is(err, ErrReferenceUnknown) {
		return conf, nil
	}
	if err != nil {
		return Confirmation{}, err
	}

	conf.State = state
	conf.Settled = state == "captured"
	return conf, nil
}

// fetchStatus bounds the SDK call, which takes no context, by ctx.
func (r *Razorpay) fetchStatus(ctx context.Context, reference string) (string, error) {
	type result struct {
		body map[string]interface{}
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		body, err := r.payments.Fetch(reference, nil, nil)
		ch <- result{body, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil {
			if refused(res.err) {
				return "", fmt.Errorf("%w: %v", ErrReferenceUnknown, res.err)
			}
			return "", res.err
		}
		status, _ := res.body["status"].(string)
		if status == "" {
			return "", ErrReferenceUnknown
		}
		return status, nil
	}
}

// refused reports a described BadRequestError. An undescribed one means the
// SDK could not parse the error body (a proxy page), so it stays retryable
// alongside ServerError, GatewayError and transport or decode failures.
func refused(err error) bool {
	var bad *rzperrors.BadRequestError
	return errors.As(err, &bad) && bad.Message != ""
}
