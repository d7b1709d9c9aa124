package model

import (
	"time"

	"main/internal/model/enum"
)

// Reason is one active contributor to the failsafe level. Reasons are keyed
// by Key; a new report for the same key replaces the previous one.
type Reason struct {
	Key     string
	Kind    enum.ReasonKind
	Level   enum.FailsafeLevel
	Since   time.Time
	Detail  string
	ClearAt time.Time // zero while the underlying signal is still bad
}

// FailsafeState is a point-in-time snapshot of the monitor's derived state.
// The monitor owns the live state; everyone else sees copies.
type FailsafeState struct {
	Level         enum.FailsafeLevel
	EnteredAt     time.Time
	Reasons       []Reason
	ActiveActions []string
}
