package backoff

import (
	"math/rand"
	"time"
)

// Backoff widens the delay between status polls after consecutive failures.
// It never re-issues a request on its own.
type Backoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Jitter is the fraction of the interval added or removed at random, e.g. 0.1 for ±10%.
	Jitter float64

	current  time.Duration
	failures int
	random   func() float64
}

func New(initial, max time.Duration, multiplier float64) *Backoff {
	return &Backoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		Jitter:          0.1,
		random:          rand.Float64,
	}
}

// Next records a failure and returns the delay before the next poll
func (b *Backoff) Next() time.Duration {
	b.failures++
	if b.current == 0 {
		b.current = b.InitialInterval
	} else {
		b.current = time.Duration(float64(b.current) * b.Multiplier)
	}
	if b.current > b.MaxInterval {
		b.current = b.MaxInterval
	}

	spread := b.Jitter * float64(b.current)
	jitter := time.Duration(b.random()*2*spread - spread)

	return b.current + jitter
}

// Failures returns how many failures have been recorded since the last Reset
func (b *Backoff) Failures() int {
	return b.failures
}

// Reset clears the failure streak
func (b *Backoff) Reset() {
	b.current = 0
	b.failures = 0
}
