package model

import (
	"time"

	"main/internal/model/enum"
)

// HealthRecord is the most recent observation of one monitored subsystem.
// Each new observation supersedes the previous one; history is an audit
// concern, not held here.
type HealthRecord struct {
	Subsystem        string
	Status           enum.HealthStatus
	ObservedAt       time.Time
	ConsecutiveFails int
	Detail           string
}

// Subsystem describes one monitored health endpoint. Critical subsystems
// can degrade the whole system on their own; records from non-critical ones
// are informational only.
type Subsystem struct {
	Name     string
	URL      string
	Critical bool
}
