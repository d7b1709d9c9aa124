package feed

import (
	"context"
	"testing"
	"time"

	"main/internal/model/enum"
)

func TestCheckLiveness(t *testing.T) {
	now := time.Unix(1700000000, 0)
	f := New(context.Background(), Config{URL: "wss://example.invalid/ws", StaleAfter: 90 * time.Second})
	f.clock = func() time.Time { return now }

	status, detail := f.Check(context.Background())
	if status != enum.HealthDown || detail != "never connected" {
		t.Fatalf("unconnected feed mismatch: %s %q", status, detail)
	}

	f.lastMessage.Store(now.UnixNano())
	if status, _ = f.Check(context.Background()); status != enum.HealthUp {
		t.Fatalf("fresh stream mismatch: %s", status)
	}

	now = now.Add(2 * time.Minute)
	status, detail = f.Check(context.Background())
	if status != enum.HealthDegraded {
		t.Fatalf("stale stream mismatch: %s", status)
	}
	if detail == "" {
		t.Fatal("stale detail should name the silence duration")
	}
}

func TestStaleAfterDefault(t *testing.T) {
	f := New(context.Background(), Config{URL: "wss://example.invalid/ws"})
	if f.staleAfter != 90*time.Second {
		t.Fatalf("default mismatch: %s", f.staleAfter)
	}
}
