package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"main/internal/model/enum"
)

// Prom mirrors the core's internal telemetry outward as prometheus
// collectors. The failsafe loop never reads these back; exposition is
// write-only from the core's perspective.
type Prom struct {
	commandsTotal   *prometheus.CounterVec
	dispatchLatency prometheus.Histogram
	failsafeLevel   prometheus.Gauge
	driftOffset     prometheus.Gauge
	subsystemUp     *prometheus.GaugeVec
	queueDepth      prometheus.Gauge
}

// NewProm builds and registers the collectors on reg. A nil registry uses
// the default registerer.
func NewProm(reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prom{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_commands_total",
			Help: "Commands reaching a terminal state, by state.",
		}, []string{"state"}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coordinator_dispatch_latency_seconds",
			Help:    "Latency of a single executor dispatch attempt.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		failsafeLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_failsafe_level",
			Help: "Current failsafe level (0=normal 1=degraded 2=restricted 3=halted).",
		}),
		driftOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_clock_drift_seconds",
			Help: "Last measured clock offset against the time reference.",
		}),
		subsystemUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coordinator_subsystem_up",
			Help: "Subsystem health (1=up 0.5=degraded 0=down).",
		}, []string{"subsystem"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_queue_depth",
			Help: "Commands currently queued or dispatching.",
		}),
	}
	reg.MustRegister(
		p.commandsTotal,
		p.dispatchLatency,
		p.failsafeLevel,
		p.driftOffset,
		p.subsystemUp,
		p.queueDepth,
	)
	return p
}

// IncTerminal counts a terminal transition. All methods are nil-safe so
// components can run without exposition wired.
func (p *Prom) IncTerminal(state enum.CommandState) {
	if p == nil {
		return
	}
	p.commandsTotal.WithLabelValues(state.String()).Inc()
}

func (p *Prom) ObserveDispatch(d time.Duration) {
	if p == nil {
		return
	}
	p.dispatchLatency.Observe(d.Seconds())
}

func (p *Prom) SetLevel(level enum.FailsafeLevel) {
	if p == nil {
		return
	}
	p.failsafeLevel.Set(float64(level))
}

func (p *Prom) SetDrift(offset time.Duration) {
	if p == nil {
		return
	}
	p.driftOffset.Set(offset.Seconds())
}

func (p *Prom) SetSubsystem(name string, status enum.HealthStatus) {
	if p == nil {
		return
	}
	v := 0.0
	switch status {
	case enum.HealthUp:
		v = 1
	case enum.HealthDegraded:
		v = 0.5
	}
	p.subsystemUp.WithLabelValues(name).Set(v)
}

func (p *Prom) SetQueueDepth(n int) {
	if p == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}
