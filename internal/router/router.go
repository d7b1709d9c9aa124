package router

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/journal"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/pkg/exception"
)

// Executor runs a command payload. The router has no knowledge of what a
// command does; transient errors (exception.IsTransient) are retried,
// everything else is permanent.
type Executor interface {
	Execute(ctx context.Context, payload []byte) ([]byte, error)
}

// LevelSource is the failsafe monitor's read surface.
type LevelSource interface {
	CurrentLevel() enum.FailsafeLevel
}

// TelemetrySink is the failsafe monitor's report surface.
type TelemetrySink interface {
	ReportRouterTelemetry(success, failure uint64, window time.Duration)
}

// TerminalStore mirrors terminal command records durably. Optional.
type TerminalStore interface {
	SaveTerminal(ctx context.Context, status model.CommandStatus) error
}

// ClassConfig is the token bucket for one priority class.
type ClassConfig struct {
	Capacity     int
	RefillPerSec float64
}

// Config controls router behavior. Zero fields take defaults.
type Config struct {
	MaxQueue        int
	MaxRetries      int
	DispatchTimeout time.Duration
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	// MaxQueueAge bounds how long a command may wait while gated; beyond
	// it the command fails with Expired instead of resuming.
	MaxQueueAge time.Duration
	// Retention keeps terminal commands visible to Status before eviction.
	Retention time.Duration
	// TelemetryWindow is the sliding span reported to the failsafe monitor.
	TelemetryWindow   time.Duration
	TelemetryInterval time.Duration
	Classes           map[enum.Priority]ClassConfig
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 60 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if cfg.MaxQueueAge <= 0 {
		cfg.MaxQueueAge = 10 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.TelemetryWindow <= 0 {
		cfg.TelemetryWindow = time.Minute
	}
	if cfg.TelemetryInterval <= 0 {
		cfg.TelemetryInterval = 5 * time.Second
	}
	return cfg
}

// Router owns every submitted command's lifecycle: queued, throttled,
// gated, dispatched, retried and finally terminal. Callers hold only IDs.
type Router struct {
	cfg      Config
	clock    func() time.Time
	rng      *rand.Rand
	executor Executor
	levels   LevelSource
	window   *obs.Window

	stopped atomic.Bool

	mu       sync.Mutex
	commands map[string]*model.Command
	pending  pendingQueue
	buckets  [enum.PriorityCount]*tokenBucket
	seq      uint64
	wake     chan struct{}

	sink  TelemetrySink
	store TerminalStore
	prom  *obs.Prom
	audit *journal.Writer
}

// Option configures optional collaborators.
type Option func(*Router)

// WithTelemetrySink wires the failsafe monitor's report surface.
func WithTelemetrySink(sink TelemetrySink) Option {
	return func(r *Router) { r.sink = sink }
}

// WithTerminalStore mirrors terminal commands to a durable store.
func WithTerminalStore(store TerminalStore) Option {
	return func(r *Router) { r.store = store }
}

// WithProm exports router metrics.
func WithProm(p *obs.Prom) Option {
	return func(r *Router) { r.prom = p }
}

// WithJournal records lifecycle transitions to the audit sink.
func WithJournal(w *journal.Writer) Option {
	return func(r *Router) { r.audit = w }
}

// WithClock injects a clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Router) { r.clock = clock }
}

// WithJitterSource injects the retry jitter source. Nil disables jitter.
func WithJitterSource(rng *rand.Rand) Option {
	return func(r *Router) { r.rng = rng }
}

// New creates a router. executor must not be nil; levels may be nil, which
// leaves dispatch ungated.
func New(cfg Config, executor Executor, levels LevelSource, opts ...Option) *Router {
	cfg = cfg.withDefaults()
	r := &Router{
		cfg:      cfg,
		clock:    time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		executor: executor,
		levels:   levels,
		commands: make(map[string]*model.Command),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.window = obs.NewWindow(cfg.TelemetryWindow, r.clock)
	now := r.clock()
	for p := enum.PriorityLow; p <= enum.PriorityCritical; p++ {
		class, ok := cfg.Classes[p]
		if !ok {
			class = ClassConfig{Capacity: 10, RefillPerSec: 5}
		}
		r.buckets[classIndex(p)] = newTokenBucket(class.Capacity, class.RefillPerSec, now)
	}
	return r
}

// Submit queues a command and returns its identifier immediately. The
// current failsafe level gates admission of the priority class; the class
// token bucket throttles the rate. At Halted submissions still queue, since
// dispatch resumes automatically on de-escalation.
func (r *Router) Submit(cmd model.Command) (string, error) {
	if r.stopped.Load() {
		return "", exception.ErrRouterStopped
	}
	if !cmd.Priority.IsAvailable() {
		cmd.Priority = enum.PriorityNormal
	}

	if level := r.currentLevel(); level == enum.LevelRestricted && cmd.Priority != enum.PriorityCritical {
		return "", exception.ErrCommandRejected
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	if !r.buckets[classIndex(cmd.Priority)].take(now) {
		return "", exception.ErrCommandThrottled
	}
	if r.pending.len() >= r.cfg.MaxQueue {
		return "", exception.ErrQueueFull
	}

	r.seq++
	if cmd.ID == "" {
		cmd.ID = strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.FormatUint(r.seq, 10)
	} else if _, exists := r.commands[cmd.ID]; exists {
		return "", exception.ErrCommandExists
	}

	cmd.State = enum.CommandStateQueued
	cmd.SubmittedAt = now
	owned := cmd
	r.commands[owned.ID] = &owned
	r.pending.push(&entry{cmd: &owned, readyAt: now})
	r.notify()

	r.audit.Append("router", "submitted", owned.ID)
	logs.Infof("router: queued command %s priority=%s", owned.ID, owned.Priority)
	return owned.ID, nil
}

// Status returns the caller-facing view of a command, or
// exception.ErrCommandNotFound once it has been evicted.
func (r *Router) Status(id string) (model.CommandStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd, ok := r.commands[id]
	if !ok {
		return model.CommandStatus{}, exception.ErrCommandNotFound
	}
	return cmd.StatusView(), nil
}

// Cancel transitions a still-queued command to Cancelled. Once dispatch has
// begun the command runs to completion and Cancel fails with
// exception.ErrCommandAlreadyTerminal.
func (r *Router) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd, ok := r.commands[id]
	if !ok {
		return exception.ErrCommandNotFound
	}
	if cmd.State != enum.CommandStateQueued || !r.pending.remove(id) {
		return exception.ErrCommandAlreadyTerminal
	}
	r.terminateLocked(cmd, enum.CommandStateCancelled, "cancelled by caller", nil)
	return nil
}

// QueueDepth reports commands currently queued.
func (r *Router) QueueDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.len()
}

// Run drives dispatch, telemetry and retention until ctx is done. After it
// returns, Submit fails with exception.ErrRouterStopped.
func (r *Router) Run(ctx context.Context) {
	defer r.stopped.Store(true)
	go r.telemetryLoop(ctx)

	for {
		e, wait := r.next()
		if e != nil {
			r.dispatch(ctx, e)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-r.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (r *Router) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.TelemetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publishTelemetry()
		}
	}
}

// next pops a dispatchable entry, expiring over-age commands first. When
// nothing is eligible it returns how long to sleep.
func (r *Router) next() (*entry, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	for _, cmd := range r.pending.expire(now, r.cfg.MaxQueueAge) {
		r.terminateLocked(cmd, enum.CommandStateExpired, exception.ErrCommandExpired.Error(), nil)
	}
	r.evictLocked(now)

	level := r.currentLevel()
	allowed := func(p enum.Priority) bool { return gateAllows(level, p) }

	if e := r.pending.popReady(now, allowed); e != nil {
		return e, 0
	}

	wait := r.cfg.TelemetryInterval
	if next := r.pending.nextReadyAt(allowed); !next.IsZero() {
		if until := next.Sub(now); until < wait {
			wait = until
		}
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return nil, wait
}

// gateAllows applies the failsafe dispatch gate: Halted dispatches nothing,
// Restricted only the highest class.
func gateAllows(level enum.FailsafeLevel, p enum.Priority) bool {
	switch level {
	case enum.LevelHalted:
		return false
	case enum.LevelRestricted:
		return p == enum.PriorityCritical
	default:
		return true
	}
}

func (r *Router) dispatch(ctx context.Context, e *entry) {
	cmd := e.cmd

	r.mu.Lock()
	cmd.State = enum.CommandStateDispatching
	cmd.Attempts++
	attempt := cmd.Attempts
	payload := cmd.Payload
	r.mu.Unlock()

	r.audit.Append("router", "dispatching", cmd.ID)

	execCtx, cancel := context.WithTimeout(ctx, r.cfg.DispatchTimeout)
	started := r.clock()
	result, err := r.executor.Execute(execCtx, payload)
	cancel()
	r.prom.ObserveDispatch(r.clock().Sub(started))

	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		r.window.RecordSuccess()
		r.terminateLocked(cmd, enum.CommandStateSucceeded, "", result)
		return
	}

	r.window.RecordFailure()
	if !exception.IsTransient(err) {
		r.terminateLocked(cmd, enum.CommandStateFailed, err.Error(), nil)
		return
	}
	if attempt >= r.cfg.MaxRetries {
		r.terminateLocked(cmd, enum.CommandStateFailed, err.Error(), nil)
		return
	}

	delay := jitter(backoffDelay(r.cfg.BackoffBase, r.cfg.BackoffCap, attempt), r.rng)
	cmd.State = enum.CommandStateQueued
	cmd.LastErr = err.Error()
	r.pending.push(&entry{cmd: cmd, readyAt: r.clock().Add(delay)})
	logs.Warnf("router: retrying %s in %s after attempt %d, err: %+v", cmd.ID, delay, attempt, err)
}

// terminateLocked moves a command into a terminal state exactly once.
func (r *Router) terminateLocked(cmd *model.Command, state enum.CommandState, lastErr string, result []byte) {
	if cmd.State.IsTerminal() {
		return
	}
	cmd.State = state
	cmd.TerminalAt = r.clock()
	if lastErr != "" {
		cmd.LastErr = lastErr
	}
	cmd.Result = result

	r.prom.IncTerminal(state)
	r.prom.SetQueueDepth(r.pending.len())
	r.audit.Append("router", state.String(), cmd.ID)
	if r.store != nil {
		view := cmd.StatusView()
		go func() {
			if err := r.store.SaveTerminal(context.Background(), view); err != nil {
				logs.Errorf("router: mirror terminal %s, err: %+v", view.ID, err)
			}
		}()
	}
	logs.Infof("router: command %s -> %s", cmd.ID, state)
}

// evictLocked drops terminal commands older than the retention window.
func (r *Router) evictLocked(now time.Time) {
	for id, cmd := range r.commands {
		if cmd.State.IsTerminal() && now.Sub(cmd.TerminalAt) > r.cfg.Retention {
			delete(r.commands, id)
		}
	}
}

func (r *Router) publishTelemetry() {
	if r.sink == nil {
		return
	}
	success, failure := r.window.Totals()
	r.sink.ReportRouterTelemetry(success, failure, r.window.Span())
	r.prom.SetQueueDepth(r.QueueDepth())
}

func (r *Router) currentLevel() enum.FailsafeLevel {
	if r.levels == nil {
		return enum.LevelNormal
	}
	return r.levels.CurrentLevel()
}

func (r *Router) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}
