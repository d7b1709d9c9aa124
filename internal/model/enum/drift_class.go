package enum

// DriftClass classifies a measured clock offset against configured tolerances.
type DriftClass uint8

const (
	DriftInTolerance DriftClass = iota
	DriftWarning
	DriftCritical
)

func (c DriftClass) String() string {
	switch c {
	case DriftInTolerance:
		return "in_tolerance"
	case DriftWarning:
		return "warning"
	case DriftCritical:
		return "critical"
	default:
		return "unknown"
	}
}
