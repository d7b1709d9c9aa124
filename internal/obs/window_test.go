package obs

import (
	"testing"
	"time"
)

func TestWindowTotals(t *testing.T) {
	now := time.Unix(1700000000, 0)
	w := NewWindow(time.Minute, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		w.RecordSuccess()
	}
	w.RecordFailure()

	success, failure := w.Totals()
	if success != 3 || failure != 1 {
		t.Fatalf("totals mismatch: success=%d failure=%d", success, failure)
	}
	if w.Span() != time.Minute {
		t.Fatalf("span mismatch: %s", w.Span())
	}
}

func TestWindowExpiresOldCounts(t *testing.T) {
	now := time.Unix(1700000000, 0)
	w := NewWindow(time.Minute, func() time.Time { return now })

	w.RecordFailure()
	now = now.Add(2 * time.Minute)

	success, failure := w.Totals()
	if success != 0 || failure != 0 {
		t.Fatalf("expired counts leaked: success=%d failure=%d", success, failure)
	}

	w.RecordSuccess()
	success, failure = w.Totals()
	if success != 1 || failure != 0 {
		t.Fatalf("fresh counts mismatch: success=%d failure=%d", success, failure)
	}
}

func TestWindowSlidesGradually(t *testing.T) {
	now := time.Unix(1700000000, 0)
	w := NewWindow(time.Minute, func() time.Time { return now })

	w.RecordSuccess()
	now = now.Add(30 * time.Second)
	w.RecordSuccess()

	success, _ := w.Totals()
	if success != 2 {
		t.Fatalf("both counts should be inside the span, got %d", success)
	}

	now = now.Add(45 * time.Second)
	success, _ = w.Totals()
	if success != 1 {
		t.Fatalf("the older count should have aged out, got %d", success)
	}
}
