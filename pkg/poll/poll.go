// Package poll implements the adaptive convergence poller used by every
// "wait for remote state to settle" helper in the harness. It repeatedly
// invokes a check function on a growing, clamped interval until a completion
// predicate holds or an overall timeout elapses.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMinInterval = 50 * time.Millisecond
	DefaultMaxInterval = 500 * time.Millisecond
	DefaultMultiplier  = 1.5
)

// Config bounds one poll invocation. The interval starts at MinInterval,
// is multiplied by Multiplier after every unsuccessful check, and is clamped
// at MaxInterval. Timeout bounds the whole loop, not an individual check.
type Config struct {
	Timeout     time.Duration
	MinInterval time.Duration
	MaxInterval time.Duration
	Multiplier  float64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.Multiplier <= 1 {
		c.Multiplier = DefaultMultiplier
	}
	return c
}

// errNotSettled marks a check that ran cleanly but whose result does not yet
// satisfy the completion predicate.
var errNotSettled = errors.New("condition not yet satisfied")

// TimeoutError is returned when the poll timeout elapses. It carries the last
// observed value and the last check error for diagnostics.
type TimeoutError struct {
	Timeout   time.Duration
	LastValue any
	LastErr   error
}

func (e *TimeoutError) Error() string {
	switch {
	case e.LastErr != nil:
		return fmt.Sprintf("condition not satisfied after %s (last check error: %v)", e.Timeout, e.LastErr)
	case e.LastValue != nil:
		return fmt.Sprintf("condition not satisfied after %s (last observed value: %v)", e.Timeout, e.LastValue)
	default:
		return fmt.Sprintf("condition not satisfied after %s", e.Timeout)
	}
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// IsTimeout reports whether err is a poll timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Until polls check until done reports the returned value as settled.
//
// A check error does not abort the loop; it is recorded for the final
// diagnostic and polling continues, so transient lookup failures ("not found
// yet") are indistinguishable from an unsettled value until the timeout.
// Success returns immediately, without a trailing sleep.
//
// On timeout (or context cancellation) the last observed value is returned
// together with a *TimeoutError.
func Until[T any](ctx context.Context, cfg Config, check func(context.Context) (T, error), done func(T) bool) (T, error) {
	cfg = cfg.withDefaults()

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.MinInterval),
		backoff.WithMaxInterval(cfg.MaxInterval),
		backoff.WithMultiplier(cfg.Multiplier),
		backoff.WithMaxElapsedTime(cfg.Timeout),
		backoff.WithRandomizationFactor(0),
	)

	var (
		lastValue    T
		haveValue    bool
		lastCheckErr error
	)

	op := func() (T, error) {
		v, checkErr := check(ctx)
		if checkErr != nil {
			lastCheckErr = checkErr
			return v, checkErr
		}
		lastValue = v
		haveValue = true
		lastCheckErr = nil
		if !done(v) {
			return v, errNotSettled
		}
		return v, nil
	}

	v, retryErr := backoff.RetryNotifyWithData(op, backoff.WithContext(b, ctx), nil)
	if retryErr == nil {
		return v, nil
	}

	te := &TimeoutError{
		Timeout: cfg.Timeout,
		LastErr: lastCheckErr,
	}
	if haveValue {
		te.LastValue = lastValue
	}
	return lastValue, te
}

// UntilTrue is a convenience wrapper for boolean conditions.
func UntilTrue(ctx context.Context, cfg Config, check func(context.Context) (bool, error)) error {
	_, err := Until(ctx, cfg, check, func(ok bool) bool { return ok })
	return err
}
