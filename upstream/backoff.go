/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"
)

// BackoffOpts configures Backoff.
type BackoffOpts struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is a randomization factor in [0, 1]. With 0 the delays are deterministic.
	Jitter float64
}

// Backoff computes reconnect delays. It does no I/O and never sleeps.
// Delays grow exponentially from Min, are always within [Min, Max] and never decrease until Reset.
// Next and Reset must not be called concurrently, Attempt may be called from any goroutine.
type Backoff struct {
	min     time.Duration
	max     time.Duration
	exp     *backoff.ExponentialBackOff
	last    time.Duration
	attempt atomic.Int32
}

// NewBackoff creates a new Backoff.
func NewBackoff(opts BackoffOpts) *Backoff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = opts.Min
	exp.MaxInterval = opts.Max
	exp.Multiplier = opts.Multiplier
	exp.RandomizationFactor = opts.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &Backoff{min: opts.Min, max: opts.Max, exp: exp}
}

// Next advances the attempt counter and returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.attempt.Inc()
	// Jitter may pull a delay below the previous one.
	d := max(b.exp.NextBackOff(), b.min, b.last)
	d = min(d, b.max)
	b.last = d
	return d
}

// Reset returns to the minimal delay.
func (b *Backoff) Reset() {
	b.attempt.Store(0)
	b.last = 0
	b.exp.Reset()
}

// Attempt returns the number of delays handed out since the last reset.
func (b *Backoff) Attempt() int {
	return int(b.attempt.Load())
}
