// Package retry executes failing operations repeatedly under a backoff
// policy, reporting the attempt count and cumulative delay alongside the
// result.
package retry

import (
	"context"
	"time"

	"github.com/alertwire/alertwire/internal/backoff"
)

// Outcome is the terminal result of a retry sequence. Exactly one of
// Success and Failed holds.
type Outcome[T any] struct {
	// Value is the operation result when the sequence succeeded.
	Value T

	// Attempts is the number of attempts made, in [1, MaxAttempts].
	Attempts int

	// TotalDelay is the cumulative backoff delay waited out between
	// attempts. Delays aborted by context cancellation are not counted.
	TotalDelay time.Duration

	// Err is the error from the last failed attempt. It is never
	// discarded: a failed outcome always carries the final error.
	Err error

	succeeded bool
}

// Success reports whether the sequence produced a value.
func (o Outcome[T]) Success() bool { return o.succeeded }

// Failed reports whether the sequence exhausted its attempts, hit a
// non-retryable error, or was cancelled.
func (o Outcome[T]) Failed() bool { return !o.succeeded }

// Engine runs operations under a backoff policy. The zero value is not
// usable; construct with NewEngine.
type Engine[T any] struct {
	policy backoff.Policy
}

// NewEngine creates an engine driven by the given policy.
func NewEngine[T any](policy backoff.Policy) *Engine[T] {
	return &Engine[T]{policy: policy}
}

// Policy returns the engine's backoff policy.
func (e *Engine[T]) Policy() backoff.Policy { return e.policy }

// Do runs op up to the policy's attempt budget. It returns immediately on
// the first success. After a failure that leaves attempts remaining, it
// waits out the policy delay for the current attempt; no delay is incurred
// after the final attempt. Cancelling ctx aborts a pending delay
// immediately and returns the failed outcome with the last error.
func (e *Engine[T]) Do(ctx context.Context, op func(context.Context) (T, error)) Outcome[T] {
	return e.DoIf(ctx, op, nil)
}

// DoIf is Do with a predicate over failures. When retryable reports a
// failure as non-retryable the engine returns at once without consuming
// further attempts or delaying. A nil predicate treats every failure as
// retryable.
func (e *Engine[T]) DoIf(ctx context.Context, op func(context.Context) (T, error), retryable func(error) bool) Outcome[T] {
	var out Outcome[T]

	maxAttempts := e.policy.MaxAttempts()
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out.Attempts = attempt + 1

		v, err := op(ctx)
		if err == nil {
			out.Value = v
			out.succeeded = true
			return out
		}
		out.Err = err

		if retryable != nil && !retryable(err) {
			return out
		}

		if attempt+1 < maxAttempts {
			delay := e.policy.DelayFor(attempt)
			if sleepErr := backoff.Sleep(ctx, delay); sleepErr != nil {
				return out
			}
			out.TotalDelay += delay
		}
	}

	return out
}
