package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewWriter(Config{Path: path, FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	w.Append("router", "submitted", "cmd-1")
	w.Append("failsafe", "level_change", "normal->degraded")
	w.Close()

	var events []Event
	if err := Replay(path, func(e Event) {
		events = append(events, e)
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("event count mismatch: %d", len(events))
	}
	if events[0].Component != "router" || events[0].Kind != "submitted" || events[0].Detail != "cmd-1" {
		t.Fatalf("first event mismatch: %+v", events[0])
	}
	if events[1].Kind != "level_change" {
		t.Fatalf("second event mismatch: %+v", events[1])
	}
	if events[0].Ts.IsZero() {
		t.Fatal("timestamp should be set")
	}
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	content := `{"ts":"2026-01-02T03:04:05Z","component":"router","kind":"submitted","detail":"a"}
not json at all
{"ts":"2026-01-02T03:04:06Z","component":"router","kind":"succeeded","detail":"a"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var kinds []string
	if err := Replay(path, func(e Event) {
		kinds = append(kinds, e.Kind)
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != "submitted" || kinds[1] != "succeeded" {
		t.Fatalf("kinds mismatch: %v", kinds)
	}
}

func TestReplayMissingFile(t *testing.T) {
	if err := Replay(filepath.Join(t.TempDir(), "absent.jsonl"), func(Event) {
		t.Fatal("callback should not run")
	}); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
}

func TestAppendAfterCloseIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewWriter(Config{Path: path})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	w.Close()

	// Must not panic on the closed channel.
	w.Append("router", "submitted", "late")
}

func TestNilWriterIsSafe(t *testing.T) {
	var w *Writer
	w.Append("router", "submitted", "x")
	w.Close()
	if w.Dropped() != 0 {
		t.Fatal("nil writer dropped count should be zero")
	}
}
