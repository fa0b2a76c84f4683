package services

import (
	"math"
	"time"
)

// Backoff computes reconnection delays as min(Base * 2^attempt, Max).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// MaxAttempts bounds consecutive failed attempts. -1 means unlimited.
	MaxAttempts int
}

// Delay returns the wait before reconnection attempt n (zero based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	d := b.Base
	for i := 0; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
	}

	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Exhausted reports whether attempt consecutive failures reach the bound.
func (b Backoff) Exhausted(attempt int) bool {
	return b.MaxAttempts >= 0 && attempt >= b.MaxAttempts
}
