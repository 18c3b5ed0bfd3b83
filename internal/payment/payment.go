// Package payment confirms settlement with the provider that took the money
// before an order may be recorded. It keeps no state of its own.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Method string

const (
	MethodStripe   Method = "stripe"
	MethodRazorpay Method = "razorpay"
	MethodCOD      Method = "cod"
)

func ParseMethod(s string) (Method, bool) {
	switch m := Method(s); m {
	case MethodStripe, MethodRazorpay, MethodCOD:
		return m, true
	}
	return "", false
}

// Confirmation is produced once per verification and never stored verbatim.
type Confirmation struct {
	Method    Method
	Reference string
	State     string // provider-reported state, empty for cash
	Settled   bool
}

var (
	// ErrUnavailable marks transport failures, timeouts and an open breaker. Retryable.
	ErrUnavailable = errors.New("payment provider unavailable")
	// ErrReferenceUnknown means the provider answered but has no usable record of the reference.
	ErrReferenceUnknown = errors.New("payment reference not found")
	ErrUnknownMethod    = errors.New("unknown payment method")
)

type Provider interface {
	Method() Method
	Verify(ctx context.Context, reference string) (Confirmation, error)
}

// Verifier dispatches on Method. Cash on delivery is always registered.
type Verifier struct {
	providers map[Method]Provider
	timeout   time.Duration
	log       zerolog.Logger
}

func NewVerifier(timeout time.Duration, log zerolog.Logger, providers ...Provider) *Verifier {
	v := &Verifier{
		providers: map[Method]Provider{MethodCOD: Cash{}},
		timeout:   timeout,
		log:       log,
	}
	for _, p := range providers {
		v.providers[p.Method()] = p
	}
	return v
}

// Verify returns a Confirmation with Settled=false when the provider rejects the
// reference, and an error wrapping ErrUnavailable when the provider could not answer.
func (v *Verifier) Verify(ctx context.Context, method Method, reference string) (Confirmation, error) {
	p, ok := v.providers[method]
	if !ok {
		return Confirmation{}, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	start := time.Now()
	conf, err := p.Verify(ctx, reference)
	if err != nil {
		v.log.Warn().Err(err).Str("method", string(method)).Str("reference", reference).
			Dur("took", time.Since(start)).Msg("payment verification failed")
		if errors.Is(err, ErrUnavailable) {
			return Confirmation{}, err
		}
		return Confirmation{}, fmt.Errorf("%s: %w: %w", method, ErrUnavailable, err)
	}

	v.log.Info().Str("method", string(method)).Str("reference", reference).
		Str("state", conf.State).Bool("settled", conf.Settled).Msg("payment verified")
	return conf, nil
}

// Cash is settled on delivery, so there is nothing to confirm up front.
type Cash struct{}

func (Cash) Method() Method { return MethodCOD }

func (Cash) Verify(_ context.Context, reference string) (Confirmation, error) {
	return Confirmation{Method: MethodCOD, Reference: reference, Settled: true}, nil
}
