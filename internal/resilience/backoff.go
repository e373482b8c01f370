package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff is a capped exponential delay schedule. It is shared by HTTP
// retries and by the results-wait loop that clicks a portal's retry button.
type Backoff struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps every delay.
	Max time.Duration
	// Multiplier scales the delay after each retry.
	Multiplier float64
	// Jitter adds ±Jitter*delay of randomness. Zero gives a deterministic schedule.
	Jitter float64
}

// Delay returns the wait before retry number n (1-based): Initial*Multiplier^(n-1),
// capped at Max.
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := b.Multiplier
	if mult <= 0 {
		mult = 1
	}
	delay := float64(b.Initial) * math.Pow(mult, float64(n-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	if b.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * delay * b.Jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
