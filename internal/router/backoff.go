package router

import (
	"math/rand"
	"time"
)

// backoffDelay returns the deterministic retry delay for the given attempt
// count: base doubled per attempt, bounded by cap. Attempt 1 is the first
// retry.
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if cap > 0 && delay >= cap {
			return cap
		}
	}
	if cap > 0 && delay > cap {
		return cap
	}
	return delay
}

// jitter adds up to a quarter of delay on top, so simultaneous failures do
// not re-dispatch in lockstep. A nil rng returns delay unchanged, which
// keeps retry timing deterministic under test.
func jitter(delay time.Duration, rng *rand.Rand) time.Duration {
	if rng == nil || delay <= 0 {
		return delay
	}
	return delay + time.Duration(rng.Int63n(int64(delay)/4+1))
}
