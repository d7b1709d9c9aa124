package exception

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Fatal("nil is not transient")
	}
	if IsTransient(errors.New("permanent")) {
		t.Fatal("plain errors are permanent")
	}
	if !IsTransient(Transient(errors.New("busy"))) {
		t.Fatal("wrapped errors are transient")
	}
	if !IsTransient(fmt.Errorf("dispatch: %w", Transient(errors.New("busy")))) {
		t.Fatal("transient marker should survive wrapping")
	}
	if !IsTransient(context.DeadlineExceeded) {
		t.Fatal("deadline expiry is transient")
	}
	if !IsTransient(timeoutErr{}) {
		t.Fatal("network timeouts are transient")
	}
}

func TestTransientNil(t *testing.T) {
	if Transient(nil) != nil {
		t.Fatal("wrapping nil should stay nil")
	}
}

func TestTransientPreservesCause(t *testing.T) {
	cause := errors.New("subsystem busy")
	err := Transient(cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause should be reachable through Unwrap")
	}
	if err.Error() != "transient: subsystem busy" {
		t.Fatalf("message mismatch: %q", err.Error())
	}
}
