package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLogger_RecordAndRecent(t *testing.T) {
	l := newTestLogger(t)

	l.Record(Entry{
		Operation: "placeorder", Owner: "alice", Broker: "paper",
		Mode: "live", Symbol: "SBIN", Exchange: "NSE",
		Status: "success", OrderID: "LIVE-1",
	})
	l.Record(Entry{
		Operation: "cancelorder", Owner: "alice", Broker: "paper",
		Mode: "live", Status: "success", OrderID: "LIVE-1",
	})

	// The writer is async; poll until both rows land.
	deadline := time.Now().Add(2 * time.Second)
	var records []Record
	for time.Now().Before(deadline) {
		var err error
		records, err = l.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(records) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	// Newest first.
	if records[0].Operation != "cancelorder" {
		t.Errorf("records[0].Operation = %q, want cancelorder", records[0].Operation)
	}
	if records[1].Symbol != "SBIN" {
		t.Errorf("records[1].Symbol = %q, want SBIN", records[1].Symbol)
	}
}

func TestLogger_RecordNeverBlocksOnFullBuffer(t *testing.T) {
	// No writer goroutine, so the buffer never drains.
	dropped := 0
	l := &Logger{
		entries: make(chan Entry, 1),
		OnDrop:  func() { dropped++ },
	}

	done := make(chan struct{})
	go func() {
		l.Record(Entry{Operation: "placeorder", Owner: "alice"})
		l.Record(Entry{Operation: "placeorder", Owner: "alice"})
		l.Record(Entry{Operation: "placeorder", Owner: "alice"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
}

func TestLogger_RecentLimit(t *testing.T) {
	l := newTestLogger(t)

	for i := 0; i < 5; i++ {
		l.Record(Entry{Operation: "placeorder", Owner: "alice", Broker: "paper",
			Mode: "analyze", Status: "success"})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		records, err := l.Recent(context.Background(), 3)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(records) == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("limit of 3 never reached")
}
