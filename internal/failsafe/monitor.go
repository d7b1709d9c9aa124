package failsafe

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/journal"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
)

// Config holds the escalation thresholds. Zero fields fall back to defaults.
type Config struct {
	// HeartbeatFailThreshold is the consecutive-failure count at which a
	// critical subsystem outage becomes a Degraded reason.
	HeartbeatFailThreshold int
	// ReasonDwell is how long a signal must stay nominal before its reason
	// clears.
	ReasonDwell time.Duration
	// LevelDwell is the minimum time at an elevated level before the
	// monitor may return to Normal, counted from the last level entry.
	LevelDwell time.Duration
	// FailureRateDegraded and FailureRateHalted bound the router failure
	// rate over its telemetry window.
	FailureRateDegraded float64
	FailureRateHalted   float64
	// MinWindowAttempts suppresses rate evaluation on tiny samples.
	MinWindowAttempts uint64
	// EvalInterval paces dwell re-evaluation between reports.
	EvalInterval time.Duration
	// CriticalSubsystems names the external subsystems whose outage can
	// degrade the whole system.
	CriticalSubsystems map[string]bool
	// ReportBuffer caps the pending report queue.
	ReportBuffer int
}

func (cfg Config) withDefaults() Config {
	if cfg.HeartbeatFailThreshold <= 0 {
		cfg.HeartbeatFailThreshold = 3
	}
	if cfg.ReasonDwell <= 0 {
		cfg.ReasonDwell = 30 * time.Second
	}
	if cfg.LevelDwell <= 0 {
		cfg.LevelDwell = 30 * time.Second
	}
	if cfg.FailureRateDegraded <= 0 {
		cfg.FailureRateDegraded = 0.5
	}
	if cfg.FailureRateHalted <= 0 {
		cfg.FailureRateHalted = 0.9
	}
	if cfg.MinWindowAttempts == 0 {
		cfg.MinWindowAttempts = 5
	}
	if cfg.EvalInterval <= 0 {
		cfg.EvalInterval = time.Second
	}
	if cfg.ReportBuffer <= 0 {
		cfg.ReportBuffer = 256
	}
	return cfg
}

type reportKind uint8

const (
	reportHeartbeat reportKind = iota
	reportDrift
	reportRouter
)

type report struct {
	kind    reportKind
	health  model.HealthRecord
	drift   model.DriftSample
	success uint64
	failure uint64
	window  time.Duration
}

// Monitor derives the system-wide failsafe level from heartbeat, drift and
// router telemetry. All state mutation happens on the Run goroutine; reports
// are delivered as messages and reads are lock-free snapshots.
type Monitor struct {
	cfg   Config
	clock func() time.Time

	reports chan report
	closed  atomic.Bool

	level    atomic.Uint32
	snapshot atomic.Value // model.FailsafeState

	// owned by the Run goroutine
	reasons   map[string]*model.Reason
	enteredAt time.Time
	actions   []string

	onHalt func()
	prom   *obs.Prom
	sink   *journal.Writer
}

// Option configures optional collaborators.
type Option func(*Monitor)

// WithReconnectSignal sets the fire-and-forget action run on entry into
// Halted. The monitor does not track its outcome; recovery arrives back as
// a future heartbeat.
func WithReconnectSignal(fn func()) Option {
	return func(m *Monitor) { m.onHalt = fn }
}

// WithProm mirrors the level to prometheus.
func WithProm(p *obs.Prom) Option {
	return func(m *Monitor) { m.prom = p }
}

// WithJournal records level transitions to the audit sink.
func WithJournal(w *journal.Writer) Option {
	return func(m *Monitor) { m.sink = w }
}

// WithClock injects a clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) { m.clock = clock }
}

// NewMonitor creates a monitor at LevelNormal.
func NewMonitor(cfg Config, opts ...Option) *Monitor {
	cfg = cfg.withDefaults()
	m := &Monitor{
		cfg:     cfg,
		clock:   time.Now,
		reports: make(chan report, cfg.ReportBuffer),
		reasons: make(map[string]*model.Reason),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.enteredAt = m.clock()
	m.storeSnapshot()
	return m
}

// CurrentLevel returns the current failsafe level without blocking. An
// impossible stored value reads as Halted rather than an unguarded default.
func (m *Monitor) CurrentLevel() enum.FailsafeLevel {
	level := enum.FailsafeLevel(m.level.Load())
	if !level.IsAvailable() {
		return enum.LevelHalted
	}
	return level
}

// State returns a copy of the latest derived state.
func (m *Monitor) State() model.FailsafeState {
	if s, ok := m.snapshot.Load().(model.FailsafeState); ok {
		return s
	}
	return model.FailsafeState{Level: m.CurrentLevel()}
}

// ReportHeartbeat delivers a health observation. Never fails; invalid or
// overflowing input is logged and dropped.
func (m *Monitor) ReportHeartbeat(rec model.HealthRecord) {
	if rec.Subsystem == "" || !rec.Status.IsAvailable() {
		logs.Warnf("failsafe: dropping malformed health record: %+v", rec)
		return
	}
	m.push(report{kind: reportHeartbeat, health: rec})
}

// ReportDrift delivers a drift sample. Never fails.
func (m *Monitor) ReportDrift(sample model.DriftSample) {
	if sample.Reference == "" {
		logs.Warnf("failsafe: dropping malformed drift sample: %+v", sample)
		return
	}
	m.push(report{kind: reportDrift, drift: sample})
}

// ReportRouterTelemetry delivers dispatch outcome counts over a window.
// Never fails.
func (m *Monitor) ReportRouterTelemetry(success, failure uint64, window time.Duration) {
	if window <= 0 {
		logs.Warnf("failsafe: dropping router telemetry with window %v", window)
		return
	}
	m.push(report{kind: reportRouter, success: success, failure: failure, window: window})
}

func (m *Monitor) push(r report) {
	if m.closed.Load() {
		return
	}
	select {
	case m.reports <- r:
	default:
		logs.Warnf("failsafe: report queue full, dropping %d", r.kind)
	}
}

// Run consumes reports until ctx is done. It is the only goroutine that
// mutates monitor state.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.EvalInterval)
	defer ticker.Stop()
	defer m.closed.Store(true)

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-m.reports:
			m.apply(r)
			m.recompute()
		case <-ticker.C:
			m.recompute()
		}
	}
}

func (m *Monitor) recompute() {
	now := m.clock()

	for key, reason := range m.reasons {
		if !reason.ClearAt.IsZero() && now.Sub(reason.ClearAt) >= m.cfg.ReasonDwell {
			logs.Infof("failsafe: reason cleared: %s", key)
			delete(m.reasons, key)
		}
	}

	target := enum.LevelNormal
	for _, reason := range m.reasons {
		if reason.ClearAt.IsZero() {
			target = enum.MaxLevel(target, reason.Level)
		}
	}

	current := m.CurrentLevel()
	switch {
	case target > current:
		m.enter(target, now)
	case target < current:
		// Hysteresis: drop only once every reason has cleared and the
		// level has been held for the dwell period.
		if len(m.reasons) == 0 && now.Sub(m.enteredAt) >= m.cfg.LevelDwell {
			m.enter(enum.LevelNormal, now)
		}
	}

	m.storeSnapshot()
}

func (m *Monitor) enter(level enum.FailsafeLevel, now time.Time) {
	prev := m.CurrentLevel()
	m.level.Store(uint32(level))
	m.enteredAt = now
	m.actions = m.actions[:0]
	m.prom.SetLevel(level)

	logs.Warnf("failsafe: level %s -> %s", prev, level)
	m.sink.Append("failsafe", "level_change", prev.String()+"->"+level.String())

	if level >= enum.LevelRestricted && prev < enum.LevelRestricted {
		// Enforced by the router's admission gate; recorded here only.
		m.actions = append(m.actions, "pause_noncritical_submissions")
	}
	if level == enum.LevelHalted && prev < enum.LevelHalted {
		m.actions = append(m.actions, "force_reconnect")
		if m.onHalt != nil {
			go m.onHalt()
		}
	}
}

func (m *Monitor) storeSnapshot() {
	state := model.FailsafeState{
		Level:     m.CurrentLevel(),
		EnteredAt: m.enteredAt,
	}
	if len(m.reasons) != 0 {
		state.Reasons = make([]model.Reason, 0, len(m.reasons))
		for _, reason := range m.reasons {
			state.Reasons = append(state.Reasons, *reason)
		}
	}
	if len(m.actions) != 0 {
		state.ActiveActions = append([]string(nil), m.actions...)
	}
	m.snapshot.Store(state)
}
