package heartbeat

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/pkg/exception"
)

// Sink receives one record per subsystem per tick.
type Sink interface {
	ReportHeartbeat(rec model.HealthRecord)
}

// Checker probes one subsystem. Implementations must respect ctx.
type Checker interface {
	Check(ctx context.Context) (enum.HealthStatus, string)
}

// Config controls polling cadence and per-check bounds.
type Config struct {
	Interval     time.Duration
	CheckTimeout time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 10 * time.Second
	}
	return cfg
}

// Aggregator polls every configured subsystem plus self-health and forwards
// one HealthRecord each to the failsafe monitor. Checks run concurrently
// with independent timeouts, so one dead endpoint never delays the rest.
type Aggregator struct {
	cfg   Config
	clock func() time.Time
	sink  Sink
	self  *SelfCheck
	prom  *obs.Prom

	mu       sync.Mutex
	checkers map[string]Checker
	fails    map[string]int
	records  map[string]model.HealthRecord
}

// Option configures optional collaborators.
type Option func(*Aggregator)

// WithClock injects a clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) { a.clock = clock }
}

// WithSelfCheck wires the process self-health probe.
func WithSelfCheck(s *SelfCheck) Option {
	return func(a *Aggregator) { a.self = s }
}

// WithProm mirrors subsystem status to prometheus.
func WithProm(p *obs.Prom) Option {
	return func(a *Aggregator) { a.prom = p }
}

// NewAggregator creates an aggregator with no subsystems registered.
func NewAggregator(cfg Config, sink Sink, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
		sink:     sink,
		checkers: make(map[string]Checker),
		fails:    make(map[string]int),
		records:  make(map[string]model.HealthRecord),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds a subsystem checker. Re-registering a name replaces it.
func (a *Aggregator) Register(name string, checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers[name] = checker
}

// Tick probes every subsystem once. Each check carries its own timeout and
// failure; the tick itself never fails.
func (a *Aggregator) Tick(ctx context.Context) {
	a.mu.Lock()
	names := make([]string, 0, len(a.checkers))
	for name := range a.checkers {
		names = append(names, name)
	}
	a.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			a.checkOne(ctx, name)
		}(name)
	}
	wg.Wait()

	if a.self != nil {
		rec := a.self.Observe()
		a.publish(rec)
	}
}

func (a *Aggregator) checkOne(ctx context.Context, name string) {
	a.mu.Lock()
	checker := a.checkers[name]
	a.mu.Unlock()
	if checker == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.CheckTimeout)
	defer cancel()

	status, detail := checker.Check(ctx)
	rec := model.HealthRecord{
		Subsystem:  name,
		Status:     status,
		ObservedAt: a.clock(),
		Detail:     detail,
	}

	a.mu.Lock()
	if status == enum.HealthUp {
		a.fails[name] = 0
	} else {
		a.fails[name]++
	}
	rec.ConsecutiveFails = a.fails[name]
	a.records[name] = rec
	a.mu.Unlock()

	if status != enum.HealthUp {
		logs.Warnf("heartbeat: %s is %s (%d consecutive): %s", name, status, rec.ConsecutiveFails, detail)
	}
	a.publish(rec)
}

func (a *Aggregator) publish(rec model.HealthRecord) {
	a.prom.SetSubsystem(rec.Subsystem, rec.Status)
	if a.sink != nil {
		a.sink.ReportHeartbeat(rec)
	}
}

// Records returns the latest record per subsystem.
func (a *Aggregator) Records() map[string]model.HealthRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]model.HealthRecord, len(a.records))
	for name, rec := range a.records {
		out[name] = rec
	}
	return out
}

// Run ticks on the configured interval until ctx is done.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// HTTPChecker probes a health endpoint with GET; any 2xx is up, other
// statuses are degraded, transport errors are down.
type HTTPChecker struct {
	url    string
	client *http.Client
}

// NewHTTPChecker creates a checker for url. A nil client uses a default;
// the aggregator bounds each check with its own deadline.
func NewHTTPChecker(url string, client *http.Client) *HTTPChecker {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPChecker{url: url, client: client}
}

func (c *HTTPChecker) Check(ctx context.Context) (enum.HealthStatus, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return enum.HealthDown, err.Error()
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return enum.HealthDown, exception.ErrHealthCheckTimeout.Error()
		}
		return enum.HealthDown, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return enum.HealthUp, ""
	}
	return enum.HealthDegraded, "status " + strconv.Itoa(resp.StatusCode)
}
