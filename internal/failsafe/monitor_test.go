package failsafe

import (
	"testing"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestMonitor(opts ...Option) (*Monitor, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cfg := Config{
		HeartbeatFailThreshold: 3,
		ReasonDwell:            30 * time.Second,
		LevelDwell:             30 * time.Second,
		FailureRateDegraded:    0.5,
		FailureRateHalted:      0.9,
		MinWindowAttempts:      5,
		CriticalSubsystems:     map[string]bool{"telemetry": true},
	}
	m := NewMonitor(cfg, append(opts, WithClock(clock.Now))...)
	return m, clock
}

func heartbeatReport(name string, status enum.HealthStatus, fails int) report {
	return report{kind: reportHeartbeat, health: model.HealthRecord{
		Subsystem:        name,
		Status:           status,
		ConsecutiveFails: fails,
	}}
}

func driftReport(ref string, class enum.DriftClass) report {
	return report{kind: reportDrift, drift: model.DriftSample{
		Reference: ref,
		Offset:    time.Second,
		Class:     class,
	}}
}

func step(m *Monitor, r report) {
	m.apply(r)
	m.recompute()
}

func TestHeartbeatEscalatesAfterThreshold(t *testing.T) {
	m, _ := newTestMonitor()

	step(m, heartbeatReport("telemetry", enum.HealthDown, 1))
	step(m, heartbeatReport("telemetry", enum.HealthDown, 2))
	if got := m.CurrentLevel(); got != enum.LevelNormal {
		t.Fatalf("level mismatch below threshold: got %s", got)
	}

	step(m, heartbeatReport("telemetry", enum.HealthDown, 3))
	if got := m.CurrentLevel(); got != enum.LevelDegraded {
		t.Fatalf("level mismatch at threshold: got %s", got)
	}

	state := m.State()
	if len(state.Reasons) != 1 || state.Reasons[0].Key != "heartbeat:telemetry" {
		t.Fatalf("reason set mismatch: %+v", state.Reasons)
	}
}

func TestNonCriticalOutageIsInformational(t *testing.T) {
	m, _ := newTestMonitor()

	step(m, heartbeatReport("dashboard", enum.HealthDown, 10))
	if got := m.CurrentLevel(); got != enum.LevelNormal {
		t.Fatalf("non-critical outage escalated: got %s", got)
	}
}

func TestSelfHealthRestricts(t *testing.T) {
	m, _ := newTestMonitor()

	step(m, heartbeatReport("self", enum.HealthDown, 1))
	if got := m.CurrentLevel(); got != enum.LevelRestricted {
		t.Fatalf("level mismatch: got %s", got)
	}
}

func TestDriftClassesMapToLevels(t *testing.T) {
	m, _ := newTestMonitor()

	step(m, driftReport("ntp", enum.DriftWarning))
	if got := m.CurrentLevel(); got != enum.LevelDegraded {
		t.Fatalf("warning drift: got %s", got)
	}

	step(m, driftReport("ntp", enum.DriftCritical))
	if got := m.CurrentLevel(); got != enum.LevelRestricted {
		t.Fatalf("critical drift: got %s", got)
	}
}

func TestRouterFailureRate(t *testing.T) {
	m, _ := newTestMonitor()

	// Too few attempts to judge.
	step(m, report{kind: reportRouter, success: 1, failure: 3, window: time.Minute})
	if got := m.CurrentLevel(); got != enum.LevelNormal {
		t.Fatalf("small sample escalated: got %s", got)
	}

	step(m, report{kind: reportRouter, success: 4, failure: 6, window: time.Minute})
	if got := m.CurrentLevel(); got != enum.LevelDegraded {
		t.Fatalf("elevated failure rate: got %s", got)
	}
}

func TestRouterStalledHalts(t *testing.T) {
	haltCh := make(chan struct{}, 1)
	m, _ := newTestMonitor(WithReconnectSignal(func() {
		haltCh <- struct{}{}
	}))

	step(m, report{kind: reportRouter, success: 0, failure: 10, window: time.Minute})
	if got := m.CurrentLevel(); got != enum.LevelHalted {
		t.Fatalf("stalled router: got %s", got)
	}

	select {
	case <-haltCh:
	case <-time.After(time.Second):
		t.Fatal("reconnect signal never fired")
	}

	state := m.State()
	if len(state.ActiveActions) == 0 {
		t.Fatalf("halted state should carry actions: %+v", state)
	}
}

func TestMaxSeverityAcrossReasons(t *testing.T) {
	m, _ := newTestMonitor()

	step(m, heartbeatReport("telemetry", enum.HealthDown, 3))
	step(m, driftReport("ntp", enum.DriftCritical))
	if got := m.CurrentLevel(); got != enum.LevelRestricted {
		t.Fatalf("max severity: got %s", got)
	}

	// Clearing only the drift reason leaves the heartbeat one active; the
	// level holds rather than stepping down through intermediate levels.
	step(m, driftReport("ntp", enum.DriftInTolerance))
	if got := m.CurrentLevel(); got != enum.LevelRestricted {
		t.Fatalf("level decayed with a reason still active: got %s", got)
	}
}

func TestRecoveryRequiresDwell(t *testing.T) {
	m, clock := newTestMonitor()

	step(m, heartbeatReport("telemetry", enum.HealthDown, 3))
	if got := m.CurrentLevel(); got != enum.LevelDegraded {
		t.Fatalf("setup: got %s", got)
	}

	// Signal returns to nominal but the dwell has not elapsed.
	step(m, heartbeatReport("telemetry", enum.HealthUp, 0))
	clock.advance(10 * time.Second)
	m.recompute()
	if got := m.CurrentLevel(); got != enum.LevelDegraded {
		t.Fatalf("level dropped before dwell: got %s", got)
	}

	clock.advance(40 * time.Second)
	m.recompute()
	if got := m.CurrentLevel(); got != enum.LevelNormal {
		t.Fatalf("level should recover after dwell: got %s", got)
	}
	if state := m.State(); len(state.Reasons) != 0 {
		t.Fatalf("reasons should be empty after recovery: %+v", state.Reasons)
	}
}

func TestFlappingSignalCancelsClearance(t *testing.T) {
	m, clock := newTestMonitor()

	step(m, heartbeatReport("telemetry", enum.HealthDown, 3))
	step(m, heartbeatReport("telemetry", enum.HealthUp, 0))
	clock.advance(20 * time.Second)

	// The signal goes bad again before the dwell elapses.
	step(m, heartbeatReport("telemetry", enum.HealthDown, 3))
	clock.advance(time.Hour)
	m.recompute()
	if got := m.CurrentLevel(); got != enum.LevelDegraded {
		t.Fatalf("flapping signal should keep the reason: got %s", got)
	}
}

func TestCorruptLevelReadsAsHalted(t *testing.T) {
	m, _ := newTestMonitor()

	m.level.Store(99)
	if got := m.CurrentLevel(); got != enum.LevelHalted {
		t.Fatalf("corrupt level mismatch: got %s", got)
	}
}

func TestMalformedReportsDropped(t *testing.T) {
	m, _ := newTestMonitor()

	m.ReportHeartbeat(model.HealthRecord{Subsystem: "", Status: enum.HealthDown})
	m.ReportDrift(model.DriftSample{Reference: ""})
	m.ReportRouterTelemetry(1, 1, 0)

	if got := len(m.reports); got != 0 {
		t.Fatalf("malformed reports enqueued: %d", got)
	}
}
