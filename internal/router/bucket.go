package router

import (
	"time"
)

// tokenBucket throttles submissions for one priority class. Bursts are
// bounded by capacity, sustained rate by refillPerSec.
type tokenBucket struct {
	capacity     float64
	refillPerSec float64
	tokens       float64
	last         time.Time
}

func newTokenBucket(capacity int, refillPerSec float64, now time.Time) *tokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if refillPerSec <= 0 {
		refillPerSec = 1
	}
	return &tokenBucket{
		capacity:     float64(capacity),
		refillPerSec: refillPerSec,
		tokens:       float64(capacity),
		last:         now,
	}
}

// take consumes one token, refilling for elapsed time first.
func (b *tokenBucket) take(now time.Time) bool {
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.refillPerSec
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
