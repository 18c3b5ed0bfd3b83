package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

// guard retries transport failures of an idempotent lookup and trips a breaker
// when a provider keeps failing.
type guard struct {
	cb       *gobreaker.CircuitBreaker
	maxTries uint
}

func newGuard(name string, maxTries uint) *guard {
	if maxTries == 0 {
		maxTries = 1
	}
	return &guard{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			// a rejected reference is a valid answer, not a provider fault
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrReferenceUnknown)
			},
		}),
		maxTries: maxTries,
	}
}

// lookup returns the provider state for a reference.
func (g *guard) lookup(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second

	state, err := backoff.Retry(ctx, func() (string, error) {
		v, err := g.cb.Execute(func() (interface{}, error) {
			return fn(ctx)
		})
		if err != nil {
			if errors.Is(err, ErrReferenceUnknown) ||
				errors.Is(err, gobreaker.ErrOpenState) ||
				errors.Is(err, gobreaker.ErrTooManyRequests) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return v.(string), nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(g.maxTries))
	if err != nil {
		if errors.Is(err, ErrReferenceUnknown) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return state, nil
}

func (g *guard) state() gobreaker.State { return g.cb.State() }
