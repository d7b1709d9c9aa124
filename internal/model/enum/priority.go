package enum

// Priority is the command admission class. Higher values dispatch first.
type Priority uint8

const (
	_priority_beg Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
	_priority_end
)

// PriorityCount is the number of valid priority classes.
const PriorityCount = int(_priority_end) - 1

func (p Priority) IsAvailable() bool {
	return p > _priority_beg && p < _priority_end
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}
