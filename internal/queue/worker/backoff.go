package worker

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute
)

// ExponentialBackoff returns the delay before the next attempt.
// attempt=1 => ~4s, attempt=2 => ~8s, doubling up to the cap, plus a small
// jitter (0-250ms) to avoid thundering herd.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := time.Duration(float64(backoffBase) * math.Pow(2, float64(attempt)))
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}

	return delay + time.Duration(rand.Intn(250))*time.Millisecond
}
