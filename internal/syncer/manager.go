package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
)

// Reference supplies an external timestamp to compare the local clock
// against. Unreachable references fail with an error; "no sample" is never
// reported as a drift class.
type Reference interface {
	Name() string
	Now(ctx context.Context) (time.Time, error)
}

// Sink is the subset of the failsafe monitor the syncer reports into. A
// reference outage is a heartbeat-style signal, not a drift classification.
type Sink interface {
	ReportDrift(sample model.DriftSample)
	ReportHeartbeat(rec model.HealthRecord)
}

// Config controls sampling cadence and classification thresholds.
type Config struct {
	SampleInterval    time.Duration
	SampleTimeout     time.Duration
	WarningThreshold  time.Duration
	CriticalThreshold time.Duration
	HistorySize       int
}

func (cfg Config) withDefaults() Config {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 30 * time.Second
	}
	if cfg.SampleTimeout <= 0 {
		cfg.SampleTimeout = 10 * time.Second
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = 5 * time.Second
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = 30 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	return cfg
}

// Manager measures clock drift against configured references on a fixed
// interval and feeds the failsafe monitor. Drift must be watched
// continuously regardless of other activity, so it runs as its own loop.
type Manager struct {
	cfg   Config
	clock func() time.Time
	refs  []Reference
	sink  Sink
	prom  *obs.Prom

	mu       sync.Mutex
	history  []model.DriftSample
	failures map[string]int
	checks   uint64
	failed   uint64
	offset   time.Duration
}

// Option configures optional collaborators.
type Option func(*Manager)

// WithClock injects a clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithProm mirrors the last offset to prometheus.
func WithProm(p *obs.Prom) Option {
	return func(m *Manager) { m.prom = p }
}

// NewManager creates a sync manager over the given references.
func NewManager(cfg Config, sink Sink, refs []Reference, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
		refs:     refs,
		sink:     sink,
		failures: make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sample measures drift against every reference once and forwards the
// results. Reference failures are logged and reported as heartbeat signals;
// the returned samples cover only reachable references.
func (m *Manager) Sample(ctx context.Context) []model.DriftSample {
	samples := make([]model.DriftSample, 0, len(m.refs))
	for _, ref := range m.refs {
		sample, err := m.sampleOne(ctx, ref)
		if err != nil {
			logs.Warnf("syncer: reference %s, err: %+v", ref.Name(), err)
			m.reportUnreachable(ref.Name(), err)
			continue
		}
		m.reportReachable(ref.Name())
		samples = append(samples, sample)
		if m.sink != nil {
			m.sink.ReportDrift(sample)
		}
	}
	return samples
}

func (m *Manager) sampleOne(ctx context.Context, ref Reference) (model.DriftSample, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SampleTimeout)
	defer cancel()

	refNow, err := ref.Now(ctx)
	if err != nil {
		return model.DriftSample{}, errors.Wrap(err, "reference now")
	}

	local := m.clock()
	offset := local.Sub(refNow)
	sample := model.DriftSample{
		Reference: ref.Name(),
		Offset:    offset,
		SampledAt: local,
		Class:     model.ClassifyDrift(offset, m.cfg.WarningThreshold, m.cfg.CriticalThreshold),
	}

	m.mu.Lock()
	m.checks++
	m.offset = offset
	if sample.Class != enum.DriftInTolerance {
		m.failed++
	}
	m.history = append(m.history, sample)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}
	m.mu.Unlock()

	m.prom.SetDrift(offset)
	return sample, nil
}

func (m *Manager) reportUnreachable(name string, err error) {
	m.mu.Lock()
	m.checks++
	m.failed++
	m.failures[name]++
	fails := m.failures[name]
	m.mu.Unlock()

	if m.sink == nil {
		return
	}
	m.sink.ReportHeartbeat(model.HealthRecord{
		Subsystem:        "timeref:" + name,
		Status:           enum.HealthDown,
		ObservedAt:       m.clock(),
		ConsecutiveFails: fails,
		Detail:           err.Error(),
	})
}

func (m *Manager) reportReachable(name string) {
	m.mu.Lock()
	had := m.failures[name] > 0
	m.failures[name] = 0
	m.mu.Unlock()

	if !had || m.sink == nil {
		return
	}
	m.sink.ReportHeartbeat(model.HealthRecord{
		Subsystem:  "timeref:" + name,
		Status:     enum.HealthUp,
		ObservedAt: m.clock(),
	})
}

// CorrectedNow returns local time adjusted by the last measured offset.
func (m *Manager) CorrectedNow() time.Time {
	m.mu.Lock()
	offset := m.offset
	m.mu.Unlock()
	return m.clock().Add(-offset)
}

// Run samples on the configured interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample(ctx)
		}
	}
}
