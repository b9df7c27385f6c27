package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndLast(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close() }()
	ctx := context.Background()

	if _, ok, err := st.Last(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	first := Event{Flow: "run", Outcome: OutcomeOK, PID: 101, Detail: "started"}
	if err := st.Append(ctx, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	second := Event{Flow: "stop", Outcome: OutcomeOK, PID: 0}
	if err := st.Append(ctx, second); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, ok, err := st.Last(ctx)
	if err != nil || !ok {
		t.Fatalf("last: ok=%v err=%v", ok, err)
	}
	if got.Flow != "stop" || got.PID != 0 {
		t.Fatalf("last = %+v, want the stop event", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatal("OccurredAt should default to now")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	when := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := st.Append(ctx, Event{OccurredAt: when, Flow: "update", Outcome: OutcomeError, PID: 77, Detail: "sync failed"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = st2.Close() }()
	got, ok, err := st2.Last(ctx)
	if err != nil || !ok {
		t.Fatalf("last after reopen: ok=%v err=%v", ok, err)
	}
	if !got.OccurredAt.Equal(when) {
		t.Fatalf("OccurredAt = %v, want %v", got.OccurredAt, when)
	}
	if got.Flow != "update" || got.Outcome != OutcomeError || got.PID != 77 || got.Detail != "sync failed" {
		t.Fatalf("event = %+v", got)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close() }()
	ctx := context.Background()

	for _, flow := range []string{"install", "run", "stop"} {
		if err := st.Append(ctx, Event{Flow: flow, Outcome: OutcomeOK}); err != nil {
			t.Fatalf("append %s: %v", flow, err)
		}
	}
	events, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Flow != "stop" || events[1].Flow != "run" {
		t.Fatalf("order = %s, %s", events[0].Flow, events[1].Flow)
	}
}

func TestNilStoreIsNoop(t *testing.T) {
	var st *Store
	ctx := context.Background()
	if err := st.Append(ctx, Event{Flow: "run"}); err != nil {
		t.Fatalf("nil append: %v", err)
	}
	if _, ok, err := st.Last(ctx); ok || err != nil {
		t.Fatalf("nil last: ok=%v err=%v", ok, err)
	}
	if events, err := st.Recent(ctx, 5); events != nil || err != nil {
		t.Fatalf("nil recent: %v %v", events, err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected an error for an empty DSN")
	}
}
