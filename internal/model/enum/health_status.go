package enum

// HealthStatus is the observed state of one monitored subsystem.
type HealthStatus uint8

const (
	HealthUnknown HealthStatus = iota
	HealthUp
	HealthDegraded
	HealthDown
)

func (s HealthStatus) IsAvailable() bool {
	return s > HealthUnknown && s <= HealthDown
}

func (s HealthStatus) String() string {
	switch s {
	case HealthUp:
		return "up"
	case HealthDegraded:
		return "degraded"
	case HealthDown:
		return "down"
	default:
		return "unknown"
	}
}
