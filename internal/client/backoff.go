package client

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackOff yields base, 2*base, 4*base, ... capped at capFactor*base, with no jitter.
func newBackOff(base time.Duration, capFactor int) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(capFactor) * base
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Delays returns the first n reconnect delays: min(2^attempt, capFactor) * base.
func Delays(base time.Duration, capFactor, n int) []time.Duration {
	b := newBackOff(base, capFactor)
	out := make([]time.Duration, 0, n)
	for range n {
		out = append(out, b.NextBackOff())
	}
	return out
}
