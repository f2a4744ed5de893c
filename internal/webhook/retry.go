package webhook

import (
	"math/rand"
	"time"
)

const (
	// DefaultMaxAttempts is the number of deliveries tried before giving up.
	DefaultMaxAttempts = 5

	// JitterFactor is the ±fraction of jitter applied to each delay.
	JitterFactor = 0.2
)

// Backoff schedules redelivery after a failed attempt.
type Backoff struct {
	Delays []time.Duration
	Jitter float64
	rand   func() float64
}

// DefaultBackoff retries at 1m, 5m, 30m, 2h and 12h with ±20% jitter.
func DefaultBackoff() *Backoff {
	return &Backoff{
		Delays: []time.Duration{
			time.Minute,
			5 * time.Minute,
			30 * time.Minute,
			2 * time.Hour,
			12 * time.Hour,
		},
		Jitter: JitterFactor,
		rand:   rand.Float64,
	}
}

// Delay returns the wait after the given number of failed attempts (1-based).
// Attempts past the table reuse the last delay.
func (b *Backoff) Delay(failedAttempts int) time.Duration {
	i := failedAttempts - 1
	if i < 0 {
		i = 0
	}
	if i >= len(b.Delays) {
		i = len(b.Delays) - 1
	}
	base := float64(b.Delays[i])
	r := b.rand
	if r == nil {
		r = rand.Float64
	}
	return time.Duration(base + (r()*2-1)*base*b.Jitter)
}

// Next returns when the delivery should be retried.
func (b *Backoff) Next(now time.Time, failedAttempts int) time.Time {
	return now.Add(b.Delay(failedAttempts))
}

// IsExhausted reports whether no attempts remain.
func IsExhausted(attempts, maxAttempts int) bool {
	return attempts >= maxAttempts
}
