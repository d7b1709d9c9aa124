package heartbeat

import (
	"runtime"
	"strconv"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

// SelfCheck observes the process's own memory footprint. Exceeding the
// limit is a self-health failure, which the failsafe monitor escalates to
// Restricted.
type SelfCheck struct {
	limitBytes uint64
	clock      func() time.Time

	fails int
}

// NewSelfCheck creates a self-health probe. A zero limit disables the
// memory threshold and always reports up.
func NewSelfCheck(limitBytes uint64, clock func() time.Time) *SelfCheck {
	if clock == nil {
		clock = time.Now
	}
	return &SelfCheck{limitBytes: limitBytes, clock: clock}
}

// Observe reads runtime memory stats and produces the "self" record.
func (s *SelfCheck) Observe() model.HealthRecord {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	rec := model.HealthRecord{
		Subsystem:  "self",
		Status:     enum.HealthUp,
		ObservedAt: s.clock(),
	}
	if s.limitBytes > 0 && stats.HeapInuse > s.limitBytes {
		s.fails++
		rec.Status = enum.HealthDown
		rec.ConsecutiveFails = s.fails
		rec.Detail = "heap_inuse=" + strconv.FormatUint(stats.HeapInuse, 10) +
			" limit=" + strconv.FormatUint(s.limitBytes, 10)
		return rec
	}
	s.fails = 0
	return rec
}
