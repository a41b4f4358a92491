package net

import (
	"math/rand"
	"time"
)

// Backoff returns the delay before reconnect attempt n (1-based):
// base * 2^(n-1) plus a uniform jitter in [0, maxJitter).
func Backoff(base time.Duration, n int, maxJitter time.Duration, rnd *rand.Rand) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 30 {
		n = 30
	}

	delay := base << uint(n-1)

	if maxJitter > 0 {
		delay += time.Duration(rnd.Int63n(int64(maxJitter)))
	}

	return delay
}
