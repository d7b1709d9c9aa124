package obs

import (
	"sync"
	"time"
)

const windowBuckets = 16

// Window aggregates dispatch outcomes over a sliding time span. The router
// records every genuine execution attempt here; gate rejections and
// throttles are deliberately excluded so gating cannot feed escalation.
type Window struct {
	mu    sync.Mutex
	clock func() time.Time
	span  time.Duration
	step  time.Duration

	buckets [windowBuckets]bucket
}

type bucket struct {
	start   time.Time
	success uint64
	failure uint64
}

// NewWindow creates a sliding window over span. A nil clock uses wall time.
func NewWindow(span time.Duration, clock func() time.Time) *Window {
	if span <= 0 {
		span = time.Minute
	}
	if clock == nil {
		clock = time.Now
	}
	return &Window{
		clock: clock,
		span:  span,
		step:  span / windowBuckets,
	}
}

// Span returns the configured window length.
func (w *Window) Span() time.Duration {
	return w.span
}

// RecordSuccess counts one successful dispatch.
func (w *Window) RecordSuccess() {
	w.record(1, 0)
}

// RecordFailure counts one failed or timed-out dispatch attempt.
func (w *Window) RecordFailure() {
	w.record(0, 1)
}

// Totals returns success and failure counts inside the current span.
func (w *Window) Totals() (success, failure uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.clock().Add(-w.span)
	for i := range w.buckets {
		b := &w.buckets[i]
		if b.start.IsZero() || b.start.Before(cutoff) {
			continue
		}
		success += b.success
		failure += b.failure
	}
	return success, failure
}

func (w *Window) record(success, failure uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock()
	b := &w.buckets[w.index(now)]
	if b.start.IsZero() || now.Sub(b.start) >= w.step {
		b.start = now.Truncate(w.step)
		b.success = 0
		b.failure = 0
	}
	b.success += success
	b.failure += failure
}

func (w *Window) index(now time.Time) int {
	if w.step <= 0 {
		return 0
	}
	slot := now.UnixNano() / int64(w.step)
	return int(slot % windowBuckets)
}
