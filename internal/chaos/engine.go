package chaos

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"main/pkg/exception"
)

// Config controls fault injection for the executor.
type Config struct {
	Seed int64
	// FailRate is the probability a dispatch fails [0-1].
	FailRate float64
	// TransientShare is the share of failures marked retryable [0-1].
	TransientShare float64
	// MaxLatency delays each dispatch by up to this much.
	MaxLatency time.Duration
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.FailRate < 0 || c.FailRate > 1 {
		return errors.New("failRate must be between 0 and 1")
	}
	if c.TransientShare < 0 || c.TransientShare > 1 {
		return errors.New("transientShare must be between 0 and 1")
	}
	if c.MaxLatency < 0 {
		return errors.New("maxLatency must be >= 0")
	}
	return nil
}

// Executor fails dispatches at a configured rate so router retry, failsafe
// escalation and recovery can be exercised without real subsystems. It
// implements the router's Executor interface.
type Executor struct {
	cfg Config

	mu         sync.Mutex
	rng        *rand.Rand
	dispatches uint64
	failures   uint64
}

// NewExecutor creates a fault-injecting executor with validation.
func NewExecutor(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Executor{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Execute echoes the payload back or fails per the configured rates.
func (e *Executor) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	e.mu.Lock()
	e.dispatches++
	fail := e.rng.Float64() < e.cfg.FailRate
	transient := e.rng.Float64() < e.cfg.TransientShare
	var delay time.Duration
	if e.cfg.MaxLatency > 0 {
		delay = time.Duration(e.rng.Int63n(int64(e.cfg.MaxLatency) + 1))
	}
	if fail {
		e.failures++
	}
	e.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, exception.Transient(ctx.Err())
		case <-timer.C:
		}
	}

	if !fail {
		return append([]byte(nil), payload...), nil
	}
	if transient {
		return nil, exception.Transient(errors.New("injected transient failure"))
	}
	return nil, errors.New("injected permanent failure")
}

// Counts reports dispatches seen and failures injected.
func (e *Executor) Counts() (dispatches, failures uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatches, e.failures
}

// SetFailRate changes the failure rate at runtime, so a drill can push the
// system into a failsafe level and then let it recover.
func (e *Executor) SetFailRate(rate float64) {
	if rate < 0 || rate > 1 {
		return
	}
	e.mu.Lock()
	e.cfg.FailRate = rate
	e.mu.Unlock()
}
