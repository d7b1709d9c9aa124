package failsafe

import (
	"strconv"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

// selfSubsystem is the reserved name the heartbeat aggregator uses for the
// process's own health check.
const selfSubsystem = "self"

// apply folds one report into the reason set. Level recomputation happens
// afterwards in recompute.
func (m *Monitor) apply(r report) {
	switch r.kind {
	case reportHeartbeat:
		m.applyHeartbeat(r.health)
	case reportDrift:
		m.applyDrift(r.drift)
	case reportRouter:
		m.applyRouter(r.success, r.failure)
	}
}

func (m *Monitor) applyHeartbeat(rec model.HealthRecord) {
	if rec.Subsystem == selfSubsystem {
		key := "self_health"
		if rec.Status == enum.HealthUp {
			m.markNominal(key)
			return
		}
		m.raise(key, enum.ReasonSelfHealth, enum.LevelRestricted, rec.Detail)
		return
	}

	key := "heartbeat:" + rec.Subsystem
	if rec.Status == enum.HealthUp {
		m.markNominal(key)
		return
	}
	if !m.cfg.CriticalSubsystems[rec.Subsystem] {
		return
	}
	if rec.ConsecutiveFails < m.cfg.HeartbeatFailThreshold {
		return
	}
	m.raise(key, enum.ReasonHeartbeat, enum.LevelDegraded, rec.Detail)
}

func (m *Monitor) applyDrift(sample model.DriftSample) {
	key := "drift:" + sample.Reference
	switch sample.Class {
	case enum.DriftWarning:
		m.raise(key, enum.ReasonDrift, enum.LevelDegraded, sample.Offset.String())
	case enum.DriftCritical:
		m.raise(key, enum.ReasonDrift, enum.LevelRestricted, sample.Offset.String())
	default:
		m.markNominal(key)
	}
}

func (m *Monitor) applyRouter(success, failure uint64) {
	const key = "router"
	attempts := success + failure
	if attempts < m.cfg.MinWindowAttempts {
		m.markNominal(key)
		return
	}
	rate := float64(failure) / float64(attempts)
	stalled := success == 0 && failure >= m.cfg.MinWindowAttempts

	switch {
	case stalled || rate > m.cfg.FailureRateHalted:
		m.raise(key, enum.ReasonRouterStalled, enum.LevelHalted, formatRate(rate))
	case rate > m.cfg.FailureRateDegraded:
		m.raise(key, enum.ReasonRouterFailureRate, enum.LevelDegraded, formatRate(rate))
	default:
		m.markNominal(key)
	}
}

// raise records or refreshes a contributing reason. A returning bad signal
// cancels any pending dwell clearance.
func (m *Monitor) raise(key string, kind enum.ReasonKind, level enum.FailsafeLevel, detail string) {
	now := m.clock()
	if reason, ok := m.reasons[key]; ok {
		reason.Level = enum.MaxLevel(reason.Level, level)
		reason.Detail = detail
		reason.ClearAt = time.Time{}
		return
	}
	m.reasons[key] = &model.Reason{
		Key:    key,
		Kind:   kind,
		Level:  level,
		Since:  now,
		Detail: detail,
	}
}

// markNominal starts the dwell timer for a reason whose signal returned to
// nominal. The reason stays active until the dwell elapses.
func (m *Monitor) markNominal(key string) {
	reason, ok := m.reasons[key]
	if !ok {
		return
	}
	if reason.ClearAt.IsZero() {
		reason.ClearAt = m.clock()
	}
}

func formatRate(rate float64) string {
	return "failure_rate=" + strconv.FormatFloat(rate, 'f', 2, 64)
}
