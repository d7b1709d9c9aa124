package enum

// ReasonKind identifies which signal family produced a failsafe reason.
type ReasonKind uint8

const (
	ReasonUnknown ReasonKind = iota
	ReasonHeartbeat
	ReasonSelfHealth
	ReasonDrift
	ReasonRouterFailureRate
	ReasonRouterStalled
	ReasonInternal
)

func (k ReasonKind) String() string {
	switch k {
	case ReasonHeartbeat:
		return "heartbeat"
	case ReasonSelfHealth:
		return "self_health"
	case ReasonDrift:
		return "drift"
	case ReasonRouterFailureRate:
		return "router_failure_rate"
	case ReasonRouterStalled:
		return "router_stalled"
	case ReasonInternal:
		return "internal"
	default:
		return "unknown"
	}
}
