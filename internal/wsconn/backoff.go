package wsconn

import (
	"math/rand"
	"time"
)

// Backoff computes the connection lifecycle's reconnect delay schedule:
// delay_n = min(initial * multiplier^n, max), with +/-20% jitter applied so
// a pool of clients reconnecting after a shared outage doesn't thunder back
// in lockstep.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay returns the backoff delay for the given 0-indexed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < attempt; i++ {
		d *= b.Multiplier
		if d >= float64(b.Max) {
			d = float64(b.Max)
			break
		}
	}
	base := time.Duration(d)
	jitter := 0.2 * float64(base)
	delta := (rand.Float64()*2 - 1) * jitter
	result := base + time.Duration(delta)
	if result < 0 {
		result = 0
	}
	if result > b.Max {
		result = b.Max
	}
	return result
}
