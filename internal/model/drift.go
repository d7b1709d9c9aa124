package model

import (
	"time"

	"main/internal/model/enum"
)

// DriftSample is one comparison of the local wall clock against a reference.
type DriftSample struct {
	Reference string
	Offset    time.Duration
	SampledAt time.Time
	Class     enum.DriftClass
}

// ClassifyDrift maps an offset magnitude onto a drift class. Classification
// is deterministic for a fixed pair of thresholds.
func ClassifyDrift(offset, warning, critical time.Duration) enum.DriftClass {
	magnitude := offset
	if magnitude < 0 {
		magnitude = -magnitude
	}
	switch {
	case critical > 0 && magnitude >= critical:
		return enum.DriftCritical
	case warning > 0 && magnitude >= warning:
		return enum.DriftWarning
	default:
		return enum.DriftInTolerance
	}
}
