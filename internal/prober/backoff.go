package prober

import (
	"math"
	"math/rand"
	"time"
)

// Defaults for the retry backoff. Jitter spreads retries out so
// concurrent channels do not hammer an origin in lockstep.
const (
	backoffInitial    = 250 * time.Millisecond
	backoffMax        = 2 * time.Second
	backoffMultiplier = 1.7
	backoffJitterPct  = 0.4 // ±20%
)

// backoff calculates exponential retry delays with jitter. One instance
// covers the retries of a single segment; reset between segments.
type backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitterPct  float64
	attempts   int
	rng        *rand.Rand
}

func newBackoff(rng *rand.Rand) *backoff {
	return &backoff{
		initial:    backoffInitial,
		max:        backoffMax,
		multiplier: backoffMultiplier,
		jitterPct:  backoffJitterPct,
		rng:        rng,
	}
}

// next returns the next delay and increments the attempt counter.
func (b *backoff) next() time.Duration {
	delay := b.calculate()
	b.attempts++
	return delay
}

// calculate returns the current delay without incrementing attempts.
func (b *backoff) calculate() time.Duration {
	delay := float64(b.initial) * math.Pow(b.multiplier, float64(b.attempts))
	if delay > float64(b.max) {
		delay = float64(b.max)
	}

	if b.jitterPct > 0 {
		jitterRange := delay * b.jitterPct
		delay += jitterRange*b.rng.Float64() - jitterRange/2
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func (b *backoff) reset() {
	b.attempts = 0
}
