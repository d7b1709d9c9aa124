package router

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

type executorFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f executorFunc) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

type staticLevel struct {
	v atomic.Uint32
}

func (s *staticLevel) CurrentLevel() enum.FailsafeLevel {
	return enum.FailsafeLevel(s.v.Load())
}

func (s *staticLevel) set(l enum.FailsafeLevel) {
	s.v.Store(uint32(l))
}

func fastConfig() Config {
	return Config{
		MaxQueue:          10,
		MaxRetries:        3,
		DispatchTimeout:   time.Second,
		BackoffBase:       time.Millisecond,
		BackoffCap:        5 * time.Millisecond,
		TelemetryWindow:   time.Second,
		TelemetryInterval: 10 * time.Millisecond,
		Classes: map[enum.Priority]ClassConfig{
			enum.PriorityLow:      {Capacity: 10, RefillPerSec: 100},
			enum.PriorityNormal:   {Capacity: 10, RefillPerSec: 100},
			enum.PriorityHigh:     {Capacity: 10, RefillPerSec: 100},
			enum.PriorityCritical: {Capacity: 10, RefillPerSec: 100},
		},
	}
}

func waitTerminal(t *testing.T, r *Router, id string) model.CommandStatus {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		status, err := r.Status(id)
		if err != nil {
			t.Fatalf("status %s: %v", id, err)
		}
		if status.State.IsTerminal() {
			return status
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("command %s never reached a terminal state", id)
	return model.CommandStatus{}
}

func TestSubmitAndSucceed(t *testing.T) {
	r := New(fastConfig(), executorFunc(func(_ context.Context, payload []byte) ([]byte, error) {
		return append([]byte("ok:"), payload...), nil
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	id, err := r.Submit(model.Command{Payload: []byte("ping"), Priority: enum.PriorityNormal})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status := waitTerminal(t, r, id)
	if status.State != enum.CommandStateSucceeded {
		t.Fatalf("state mismatch: got %s", status.State)
	}
	if status.Attempts != 1 {
		t.Fatalf("attempts mismatch: got %d want 1", status.Attempts)
	}
	if string(status.Result) != "ok:ping" {
		t.Fatalf("result mismatch: got %q", status.Result)
	}
}

func TestRetryTransientThenSucceed(t *testing.T) {
	var calls atomic.Int32
	r := New(fastConfig(), executorFunc(func(context.Context, []byte) ([]byte, error) {
		if calls.Add(1) < 3 {
			return nil, exception.Transient(errors.New("subsystem busy"))
		}
		return []byte("done"), nil
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	id, err := r.Submit(model.Command{Priority: enum.PriorityHigh})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status := waitTerminal(t, r, id)
	if status.State != enum.CommandStateSucceeded {
		t.Fatalf("state mismatch: got %s lastErr=%q", status.State, status.LastErr)
	}
	if status.Attempts != 3 {
		t.Fatalf("attempts mismatch: got %d want 3", status.Attempts)
	}
}

func TestPermanentErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	r := New(fastConfig(), executorFunc(func(context.Context, []byte) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("malformed payload")
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	id, err := r.Submit(model.Command{Priority: enum.PriorityNormal})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status := waitTerminal(t, r, id)
	if status.State != enum.CommandStateFailed {
		t.Fatalf("state mismatch: got %s", status.State)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("executor calls mismatch: got %d want 1", got)
	}
}

func TestRetriesExhausted(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 2
	r := New(cfg, executorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, exception.Transient(errors.New("still down"))
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	id, err := r.Submit(model.Command{Priority: enum.PriorityNormal})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status := waitTerminal(t, r, id)
	if status.State != enum.CommandStateFailed {
		t.Fatalf("state mismatch: got %s", status.State)
	}
	if status.Attempts != 2 {
		t.Fatalf("attempts mismatch: got %d want 2", status.Attempts)
	}
	if status.LastErr == "" {
		t.Fatal("lastErr should carry the final failure")
	}
}

func TestThrottleExcessSubmissions(t *testing.T) {
	cfg := fastConfig()
	cfg.Classes[enum.PriorityNormal] = ClassConfig{Capacity: 1, RefillPerSec: 0.001}
	r := New(cfg, executorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	}), nil)

	if _, err := r.Submit(model.Command{Priority: enum.PriorityNormal}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := r.Submit(model.Command{Priority: enum.PriorityNormal}); !errors.Is(err, exception.ErrCommandThrottled) {
		t.Fatalf("error mismatch: got %v want %v", err, exception.ErrCommandThrottled)
	}
	// Other classes keep their own budget.
	if _, err := r.Submit(model.Command{Priority: enum.PriorityCritical}); err != nil {
		t.Fatalf("critical submit: %v", err)
	}
}

func TestQueueFull(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxQueue = 1
	r := New(cfg, executorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	}), nil)

	if _, err := r.Submit(model.Command{Priority: enum.PriorityNormal}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := r.Submit(model.Command{Priority: enum.PriorityNormal}); !errors.Is(err, exception.ErrQueueFull) {
		t.Fatalf("error mismatch: got %v want %v", err, exception.ErrQueueFull)
	}
}

func TestRestrictedRejectsNonCritical(t *testing.T) {
	levels := &staticLevel{}
	levels.set(enum.LevelRestricted)
	r := New(fastConfig(), executorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	}), levels)

	if _, err := r.Submit(model.Command{Priority: enum.PriorityHigh}); !errors.Is(err, exception.ErrCommandRejected) {
		t.Fatalf("error mismatch: got %v want %v", err, exception.ErrCommandRejected)
	}
	if _, err := r.Submit(model.Command{Priority: enum.PriorityCritical}); err != nil {
		t.Fatalf("critical submit: %v", err)
	}
}

func TestHaltedQueuesThenResumes(t *testing.T) {
	levels := &staticLevel{}
	levels.set(enum.LevelHalted)
	r := New(fastConfig(), executorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	}), levels)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	id, err := r.Submit(model.Command{Priority: enum.PriorityCritical})
	if err != nil {
		t.Fatalf("submit at halted: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	status, err := r.Status(id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != enum.CommandStateQueued {
		t.Fatalf("command should stay queued while halted, got %s", status.State)
	}

	levels.set(enum.LevelNormal)
	status = waitTerminal(t, r, id)
	if status.State != enum.CommandStateSucceeded {
		t.Fatalf("state mismatch after resume: got %s", status.State)
	}
}

func TestExpireWhileGated(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxQueueAge = 10 * time.Millisecond
	levels := &staticLevel{}
	levels.set(enum.LevelHalted)
	r := New(cfg, executorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	}), levels)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	id, err := r.Submit(model.Command{Priority: enum.PriorityNormal})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status := waitTerminal(t, r, id)
	if status.State != enum.CommandStateExpired {
		t.Fatalf("state mismatch: got %s", status.State)
	}
}

func TestCancelQueuedOnly(t *testing.T) {
	r := New(fastConfig(), executorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	}), nil)

	id, err := r.Submit(model.Command{Priority: enum.PriorityLow})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := r.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	status, err := r.Status(id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != enum.CommandStateCancelled {
		t.Fatalf("state mismatch: got %s", status.State)
	}
	if err := r.Cancel(id); !errors.Is(err, exception.ErrCommandAlreadyTerminal) {
		t.Fatalf("error mismatch: got %v want %v", err, exception.ErrCommandAlreadyTerminal)
	}
}

func TestStatusGoneAfterRetention(t *testing.T) {
	cfg := fastConfig()
	cfg.Retention = 20 * time.Millisecond
	r := New(cfg, executorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	id, err := r.Submit(model.Command{Priority: enum.PriorityNormal})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	status := waitTerminal(t, r, id)
	if status.State != enum.CommandStateSucceeded {
		t.Fatalf("state mismatch: got %s", status.State)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.Status(id); errors.Is(err, exception.ErrCommandNotFound) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("command %s still visible past the retention window", id)
}

func TestCancelDuringDispatchFails(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := New(fastConfig(), executorFunc(func(context.Context, []byte) ([]byte, error) {
		close(started)
		<-release
		return []byte("done"), nil
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	id, err := r.Submit(model.Command{Priority: enum.PriorityNormal})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("executor never started")
	}

	// Dispatch has begun, so the command runs to completion.
	if err := r.Cancel(id); !errors.Is(err, exception.ErrCommandAlreadyTerminal) {
		t.Fatalf("error mismatch: got %v want %v", err, exception.ErrCommandAlreadyTerminal)
	}

	close(release)
	status := waitTerminal(t, r, id)
	if status.State != enum.CommandStateSucceeded {
		t.Fatalf("state mismatch: got %s", status.State)
	}
}

func TestStatusUnknownCommand(t *testing.T) {
	r := New(fastConfig(), executorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	}), nil)

	if _, err := r.Status("nope"); !errors.Is(err, exception.ErrCommandNotFound) {
		t.Fatalf("error mismatch: got %v want %v", err, exception.ErrCommandNotFound)
	}
	if err := r.Cancel("nope"); !errors.Is(err, exception.ErrCommandNotFound) {
		t.Fatalf("error mismatch: got %v want %v", err, exception.ErrCommandNotFound)
	}
}

func TestSubmitAfterStopped(t *testing.T) {
	r := New(fastConfig(), executorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	if _, err := r.Submit(model.Command{Priority: enum.PriorityNormal}); !errors.Is(err, exception.ErrRouterStopped) {
		t.Fatalf("error mismatch: got %v want %v", err, exception.ErrRouterStopped)
	}
}

func TestDuplicateID(t *testing.T) {
	r := New(fastConfig(), executorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	}), nil)

	if _, err := r.Submit(model.Command{ID: "cmd-1", Priority: enum.PriorityNormal}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := r.Submit(model.Command{ID: "cmd-1", Priority: enum.PriorityNormal}); !errors.Is(err, exception.ErrCommandExists) {
		t.Fatalf("error mismatch: got %v want %v", err, exception.ErrCommandExists)
	}
}
