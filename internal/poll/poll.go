// Package poll waits for an external job to reach a terminal state.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MinInterval is the smallest delay allowed between two status checks.
const MinInterval = 100 * time.Millisecond

var ErrTimeout = errors.New("poll: job did not reach a terminal state in time")

// Policy bounds a poll loop. Timeout caps the total wait; MaxAttempts, when
// positive, caps the number of status checks as well.
type Policy struct {
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

func DefaultPolicy() Policy {
	return Policy{
		Interval: 2 * time.Second,
		Timeout:  10 * time.Minute,
	}
}

func (p Policy) interval() time.Duration {
	if p.Interval < MinInterval {
		return MinInterval
	}
	return p.Interval
}

// Clock abstracts time so the loop can run against a simulated clock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// CheckFunc reports whether the job is done. A non-nil error stops the loop.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Until calls check until it reports done, returns an error, the policy's
// bounds are exhausted, or ctx is cancelled. The first check runs
// immediately; each following check waits at least MinInterval.
func Until(ctx context.Context, clock Clock, policy Policy, check CheckFunc) error {
	if clock == nil {
		clock = RealClock
	}

	start := clock.Now()
	wait := policy.interval()

	for attempt := 1; ; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return fmt.Errorf("%w: gave up after %d checks", ErrTimeout, attempt)
		}

		elapsed := clock.Now().Sub(start)
		if policy.Timeout > 0 && elapsed+wait > policy.Timeout {
			return fmt.Errorf("%w: waited %s", ErrTimeout, elapsed)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(wait):
		}
	}
}
