// Package backoff computes retry schedules for failed webhook deliveries.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

const (
	DefaultBaseDelay = time.Minute
	DefaultMaxDelay  = time.Hour

	// jitterFraction bounds the random spread added on top of the
	// exponential delay, as a fraction of that delay.
	jitterFraction = 0.3
)

// Calculator produces exponentially growing retry delays with jitter so that
// many deliveries failing at the same moment do not retry in lockstep.
type Calculator struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration

	now    func() time.Time
	random func() float64
}

// New returns a calculator with the given base and cap. Zero values fall back
// to the defaults (1 minute base, 1 hour cap).
func New(base, max time.Duration) *Calculator {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	return &Calculator{
		BaseDelay: base,
		MaxDelay:  max,
		now:       time.Now,
		random:    rand.Float64,
	}
}

// NextDelay returns the delay before the given retry.
// attempt counts completed attempts, so the first retry passes 1.
// Formula: min(base * 2^attempt, max) plus 0-30% jitter of that value.
func (c *Calculator) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	exp := float64(c.BaseDelay) * math.Pow(2, float64(attempt))
	if exp > float64(c.MaxDelay) {
		exp = float64(c.MaxDelay)
	}

	jitter := exp * jitterFraction * c.random()
	return time.Duration(exp + jitter)
}

// NextRetryAt returns the wall-clock instant of the next attempt.
func (c *Calculator) NextRetryAt(attempt int) time.Time {
	return c.now().Add(c.NextDelay(attempt))
}
