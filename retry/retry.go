// Package retry runs an operation repeatedly according to a Policy.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type Phase string

const (
	PhaseAttempting Phase = "attempting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Event describes one observed step of an attempt.
type Event struct {
	Attempt int
	Phase   Phase
	Err     error
	// Delay before the next attempt. Zero when the policy gave up.
	Delay time.Duration
}

// Observer is called before and after every attempt.
type Observer func(ctx context.Context, e Event)

// ExhaustedError is returned when the policy stops retrying.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Attempts reports how many attempts were made before err was returned.
// Returns 0 if err does not come from Do.
func Attempts(err error) int {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Attempts
	}
	return 0
}

type options struct {
	observers []Observer
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*options)

// WithObserver adds an attempt observer.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		opts.observers = append(opts.observers, o)
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(opts *options) {
		opts.sleep = sleep
	}
}

// Do calls fn until it succeeds or policy stops.
// Every error returned by fn is treated as transient.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) (T, error), opts ...Option) (T, error) {
	o := options{sleep: sleepContext}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	for attempt := 1; ; attempt++ {
		o.notify(ctx, Event{Attempt: attempt, Phase: PhaseAttempting})

		res, err := fn(ctx, attempt)
		if err == nil {
			o.notify(ctx, Event{Attempt: attempt, Phase: PhaseSucceeded})
			return res, nil
		}

		delay, stop := policy.TryNum(attempt)
		if stop {
			o.notify(ctx, Event{Attempt: attempt, Phase: PhaseFailed, Err: err})
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}
		o.notify(ctx, Event{Attempt: attempt, Phase: PhaseFailed, Err: err, Delay: delay})

		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			return zero, &ExhaustedError{Attempts: attempt, Err: errors.Wrapf(sleepErr, "interrupted, last error: %v", err)}
		}
	}
}

func (o *options) notify(ctx context.Context, e Event) {
	for _, obs := range o.observers {
		obs(ctx, e)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
