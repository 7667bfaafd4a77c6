package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ErrOpen is returned without calling the wrapped function while the breaker
// is open or its half-open trial budget is used up.
var ErrOpen = errors.New("circuit breaker open")

// Breaker guards calls to one external collaborator.
type Breaker struct {
	policy Policy
	cb     *gobreaker.CircuitBreaker[any]
}

// New creates a breaker for the given policy.
func New(p Policy) *Breaker {
	if p.HalfOpenMaxCalls == 0 {
		p.HalfOpenMaxCalls = 1
	}
	b := &Breaker{policy: p}

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        p.Name,
		MaxRequests: p.HalfOpenMaxCalls,
		Interval:    p.RollingWindow,
		Timeout:     p.CoolDown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return shouldTrip(c, p.VolumeThreshold, p.ErrorThresholdPercent)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || (p.Ignore != nil && p.Ignore(err))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Log.WithName("breaker").Info("circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
			recordState(name, to)
		},
	})
	recordState(p.Name, gobreaker.StateClosed)
	return b
}

func shouldTrip(c gobreaker.Counts, volume, thresholdPercent uint32) bool {
	if c.Requests < volume || c.Requests == 0 {
		return false
	}
	return c.TotalFailures*100 >= c.Requests*thresholdPercent
}

// Name returns the policy name.
func (b *Breaker) Name() string {
	return b.policy.Name
}

// State returns the current breaker state as "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Do runs fn under the breaker with the policy timeout applied to ctx.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Call(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn under the breaker and returns its typed result.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	out, err := b.cb.Execute(func() (any, error) {
		callCtx := ctx
		if b.policy.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.policy.Timeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		rejectionsTotal.WithLabelValues(b.policy.Name).Inc()
		return zero, fmt.Errorf("%w: %s", ErrOpen, b.policy.Name)
	}
	if err != nil {
		return zero, err
	}

	v, ok := out.(T)
	if !ok {
		return zero, nil
	}
	return v, nil
}
