package backoff

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFixedDelayProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("fixed delay is independent of the attempt index", prop.ForAll(
		func(delayMs int, attempt int) bool {
			p := NewFixed(time.Duration(delayMs)*time.Millisecond, 5)
			return p.DelayFor(attempt) == time.Duration(delayMs)*time.Millisecond
		},
		gen.IntRange(0, 10000),
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}

func TestLinearDelayProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("linear delay is non-decreasing and never exceeds the cap", prop.ForAll(
		func(initialMs, incrementMs, attempt int) bool {
			maxDelay := 5 * time.Second
			p := NewLinear(
				time.Duration(initialMs)*time.Millisecond,
				time.Duration(incrementMs)*time.Millisecond,
				maxDelay, 5,
			)

			cur := p.DelayFor(attempt)
			next := p.DelayFor(attempt + 1)
			return cur >= 0 && next >= cur && cur <= maxDelay && next <= maxDelay
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1<<16),
	))

	properties.TestingRun(t)
}

func TestExponentialDelayProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("jitter-free delay is non-decreasing until clamped and never exceeds the cap", prop.ForAll(
		func(attempt int) bool {
			spec := DefaultSpec().
				WithInitialDelay(10 * time.Millisecond).
				WithMaxDelay(2 * time.Second).
				WithMultiplier(2.0).
				WithJitter(0)
			p := NewExponential(spec)

			cur := p.DelayFor(attempt)
			next := p.DelayFor(attempt + 1)
			return next >= cur && cur <= 2*time.Second && next <= 2*time.Second
		},
		gen.IntRange(0, 1<<16),
	))

	properties.Property("jittered samples stay within the jitter band around the clamped base", prop.ForAll(
		func(attempt int, jitterPct int) bool {
			jitter := float64(jitterPct) / 100
			maxDelay := time.Minute
			initial := 10 * time.Millisecond

			spec := DefaultSpec().
				WithInitialDelay(initial).
				WithMaxDelay(maxDelay).
				WithMultiplier(2.0).
				WithJitter(jitter)
			p := NewExponential(spec)

			base := float64(initial.Milliseconds())
			maxMs := float64(maxDelay.Milliseconds())
			for i := 0; i < attempt; i++ {
				base *= 2
				if base >= maxMs {
					base = maxMs
					break
				}
			}

			lo := time.Duration(base*(1-jitter)-1) * time.Millisecond
			hi := maxDelay
			if unclamped := time.Duration(base*(1+jitter)) * time.Millisecond; unclamped < hi {
				hi = unclamped
			}

			d := p.DelayFor(attempt)
			return d >= lo && d <= hi
		},
		gen.IntRange(0, 30),
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}
