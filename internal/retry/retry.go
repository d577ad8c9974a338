// Package retry re-runs operations that failed with a transient error.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrTransient marks throttling, timeouts and upstream 5xx responses.
var ErrTransient = errors.New("transient service error")

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// IsRetryableStatus reports whether an HTTP-style status code is transient.
func IsRetryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

type Policy struct {
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		MaxElapsed:      30 * time.Second,
	}
}

// Delay is the backoff to wait before the given retry attempt (1-based)
// of an operation that is retried outside of Do, such as a requeued job.
func Delay(policy Policy, attempt int) time.Duration {
	bo := newBackOff(policy)
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = bo.NextBackOff()
	}
	return d
}

func newBackOff(policy Policy) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		bo.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		bo.MaxInterval = policy.MaxInterval
	}
	return bo
}

// Notify is called before every wait with the error that caused it.
type Notify func(err error, wait time.Duration)

// DoValue runs op until it succeeds, fails with a non-transient error, or
// the policy is exhausted. The last error is returned unwrapped.
func DoValue[T any](ctx context.Context, policy Policy, notify Notify, op func(ctx context.Context) (T, error)) (T, error) {
	bo := newBackOff(policy)

	attempts := policy.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	elapsed := policy.MaxElapsed
	if elapsed <= 0 {
		elapsed = DefaultPolicy().MaxElapsed
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(attempts),
		backoff.WithMaxElapsedTime(elapsed),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(notify)))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}

// Do is DoValue for operations without a result.
func Do(ctx context.Context, policy Policy, notify Notify, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, policy, notify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
