package enum

// CommandState tracks the lifecycle of a submitted command.
type CommandState uint8

const (
	CommandStateUnknown CommandState = iota
	CommandStateQueued
	CommandStateDispatching
	CommandStateSucceeded
	CommandStateFailed
	CommandStateCancelled
	CommandStateExpired
)

// IsTerminal reports whether the state permits no further transitions.
func (s CommandState) IsTerminal() bool {
	switch s {
	case CommandStateSucceeded, CommandStateFailed, CommandStateCancelled, CommandStateExpired:
		return true
	default:
		return false
	}
}

func (s CommandState) String() string {
	switch s {
	case CommandStateQueued:
		return "queued"
	case CommandStateDispatching:
		return "dispatching"
	case CommandStateSucceeded:
		return "succeeded"
	case CommandStateFailed:
		return "failed"
	case CommandStateCancelled:
		return "cancelled"
	case CommandStateExpired:
		return "expired"
	default:
		return "unknown"
	}
}
