package enum

// FailsafeLevel is the system-wide operational severity. Levels are ordered;
// a numerically greater level is more severe.
type FailsafeLevel uint8

const (
	LevelNormal FailsafeLevel = iota
	LevelDegraded
	LevelRestricted
	LevelHalted
)

func (l FailsafeLevel) IsAvailable() bool {
	return l <= LevelHalted
}

func (l FailsafeLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelDegraded:
		return "degraded"
	case LevelRestricted:
		return "restricted"
	case LevelHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// MaxLevel returns the more severe of two levels.
func MaxLevel(a, b FailsafeLevel) FailsafeLevel {
	if a > b {
		return a
	}
	return b
}
