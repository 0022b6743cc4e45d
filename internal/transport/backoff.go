package transport

import "time"

// backoff yields exponentially increasing reconnect delays, doubling the
// base per attempt up to a cap, for a bounded number of attempts.
type backoff struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int
	attempt     int
}

// next returns the delay before the upcoming attempt and whether another
// attempt is allowed at all.
func (b *backoff) next() (time.Duration, bool) {
	if b.attempt >= b.maxAttempts {
		return 0, false
	}
	delay := b.base << b.attempt
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	b.attempt++
	return delay, true
}

// reset clears the attempt counter after a successful handshake.
func (b *backoff) reset() {
	b.attempt = 0
}
