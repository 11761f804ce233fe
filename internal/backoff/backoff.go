// Package backoff provides delay policies for retrying failed operations:
// fixed, linear, and exponential with optional jitter.
package backoff

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Default configuration values, applied by DefaultSpec.
const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = 100 * time.Millisecond
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 2.0
	DefaultJitterFactor = 0.1
)

// Spec holds the configuration for a backoff policy.
// It is a value type: the builder methods return derived copies and never
// mutate the receiver, so a Spec can be shared safely once constructed.
type Spec struct {
	// MaxAttempts is the total number of attempts, including the first.
	// A value of 1 means the operation runs once and is never retried.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between any two attempts.
	MaxDelay time.Duration

	// Multiplier grows the delay for exponential policies.
	Multiplier float64

	// JitterFactor randomizes each exponential delay by a factor drawn
	// uniformly from [1-JitterFactor, 1+JitterFactor]. Zero disables
	// jitter and makes the policy deterministic.
	JitterFactor float64
}

// DefaultSpec returns a Spec populated with the package defaults.
func DefaultSpec() Spec {
	return Spec{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Multiplier:   DefaultMultiplier,
		JitterFactor: DefaultJitterFactor,
	}
}

// WithMaxAttempts returns a copy of the spec with the attempt budget set.
func (s Spec) WithMaxAttempts(n int) Spec {
	s.MaxAttempts = n
	return s
}

// WithInitialDelay returns a copy of the spec with the initial delay set.
func (s Spec) WithInitialDelay(d time.Duration) Spec {
	s.InitialDelay = d
	return s
}

// WithMaxDelay returns a copy of the spec with the delay cap set.
func (s Spec) WithMaxDelay(d time.Duration) Spec {
	s.MaxDelay = d
	return s
}

// WithMultiplier returns a copy of the spec with the growth factor set.
func (s Spec) WithMultiplier(m float64) Spec {
	s.Multiplier = m
	return s
}

// WithJitter returns a copy of the spec with the jitter factor set.
func (s Spec) WithJitter(j float64) Spec {
	s.JitterFactor = j
	return s
}

// Validate reports whether the spec holds a usable configuration.
func (s Spec) Validate() error {
	if s.MaxAttempts < 1 {
		return fmt.Errorf("backoff: max attempts must be at least 1, got %d", s.MaxAttempts)
	}
	if s.InitialDelay < 0 {
		return fmt.Errorf("backoff: initial delay must be non-negative, got %v", s.InitialDelay)
	}
	if s.MaxDelay < s.InitialDelay {
		return fmt.Errorf("backoff: max delay %v is below initial delay %v", s.MaxDelay, s.InitialDelay)
	}
	if s.Multiplier < 1.0 {
		return fmt.Errorf("backoff: multiplier must be at least 1.0, got %g", s.Multiplier)
	}
	if s.JitterFactor < 0 || s.JitterFactor > 1 {
		return fmt.Errorf("backoff: jitter factor must be in [0,1], got %g", s.JitterFactor)
	}
	return nil
}

// Policy computes the delay before a retry. Implementations are pure
// functions of their configuration, except where jitter consumes private
// pseudo-random state.
type Policy interface {
	// DelayFor returns the non-negative delay to wait after the failure of
	// the given zero-indexed attempt.
	DelayFor(attempt int) time.Duration

	// MaxAttempts returns the configured attempt budget.
	MaxAttempts() int
}

// Fixed is a Policy with a constant delay regardless of attempt index.
type Fixed struct {
	delay       time.Duration
	maxAttempts int
}

// NewFixed creates a fixed-delay policy.
func NewFixed(delay time.Duration, maxAttempts int) Fixed {
	return Fixed{delay: delay, maxAttempts: maxAttempts}
}

// DelayFor returns the constant delay.
func (f Fixed) DelayFor(int) time.Duration { return f.delay }

// MaxAttempts returns the configured attempt budget.
func (f Fixed) MaxAttempts() int { return f.maxAttempts }

// Linear is a Policy whose delay grows by a fixed increment per attempt,
// capped at a maximum.
type Linear struct {
	initial     time.Duration
	increment   time.Duration
	maxDelay    time.Duration
	maxAttempts int
}

// NewLinear creates a linearly increasing policy.
func NewLinear(initial, increment, maxDelay time.Duration, maxAttempts int) Linear {
	return Linear{
		initial:     initial,
		increment:   increment,
		maxDelay:    maxDelay,
		maxAttempts: maxAttempts,
	}
}

// DelayFor returns min(initial + increment*attempt, maxDelay).
func (l Linear) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := l.initial + l.increment*time.Duration(attempt)
	if delay > l.maxDelay || delay < 0 {
		return l.maxDelay
	}
	return delay
}

// MaxAttempts returns the configured attempt budget.
func (l Linear) MaxAttempts() int { return l.maxAttempts }

// Exponential is a Policy whose delay grows geometrically, clamped at a
// maximum, with optional jitter to decorrelate simultaneous retries from
// multiple clients.
type Exponential struct {
	spec Spec
	rng  *rand.Rand
}

// NewExponential creates an exponential policy from a spec.
func NewExponential(spec Spec) *Exponential {
	return &Exponential{
		spec: spec,
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// DelayFor returns initial * multiplier^attempt clamped to the delay cap.
// The product is accumulated step by step and clamped as soon as it
// exceeds the cap, so large attempt indices never overflow. When jitter
// is configured the clamped base is scaled by a uniform draw from
// [1-jitter, 1+jitter] and re-clamped.
func (e *Exponential) DelayFor(attempt int) time.Duration {
	maxMs := float64(e.spec.MaxDelay.Milliseconds())
	ms := float64(e.spec.InitialDelay.Milliseconds())

	for i := 0; i < attempt; i++ {
		ms *= e.spec.Multiplier
		if ms >= maxMs {
			ms = maxMs
			break
		}
	}

	if e.spec.JitterFactor > 0 {
		lo := 1.0 - e.spec.JitterFactor
		hi := 1.0 + e.spec.JitterFactor
		ms *= lo + e.rng.Float64()*(hi-lo)
	}

	delay := time.Duration(ms) * time.Millisecond
	if delay > e.spec.MaxDelay {
		delay = e.spec.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// MaxAttempts returns the configured attempt budget.
func (e *Exponential) MaxAttempts() int { return e.spec.MaxAttempts }

// Sleep waits for the given duration or until the context is cancelled,
// whichever comes first. It returns nil when the full duration elapsed and
// the context error otherwise. Zero and negative durations return
// immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
