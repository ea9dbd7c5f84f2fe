package journal

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scanvault/internal/activity"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenAppliesMigrations(t *testing.T) {
	j := testJournal(t)
	version, err := j.SchemaVersion()
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != len(migrations) {
		t.Fatalf("expected version %d, got %d", len(migrations), version)
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := j.Record(context.Background(), activity.Event{Store: activity.StoreScans, Op: activity.OpSave, Subject: "a", Bytes: 10}); err != nil {
		t.Fatalf("record: %v", err)
	}
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	events, err := j.Recent(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after reopen, got %d", len(events))
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRecentNewestFirstWithFilter(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	events := []activity.Event{
		{Store: activity.StoreImages, Op: activity.OpSave, Subject: "IMG_1.jpg", Bytes: 100, At: base},
		{Store: activity.StoreScans, Op: activity.OpSave, Subject: "s1", Bytes: 120, At: base.Add(time.Second)},
		{Store: activity.StoreScans, Op: activity.OpEvict, Subject: "s0", Bytes: 130, At: base.Add(2 * time.Second)},
		{Store: activity.StoreImages, Op: activity.OpReject, Subject: "IMG_2.jpg", Bytes: 900, Kind: "capacity_exceeded", At: base.Add(3 * time.Second)},
	}
	for _, ev := range events {
		if err := j.Record(ctx, ev); err != nil {
			t.Fatalf("record %s: %v", ev.Subject, err)
		}
	}

	all, err := j.Recent(ctx, Filter{})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 4 || all[0].Subject != "IMG_2.jpg" || all[3].Subject != "IMG_1.jpg" {
		t.Fatalf("unexpected order: %+v", all)
	}
	if all[0].Kind != "capacity_exceeded" {
		t.Fatalf("expected kind to round-trip, got %q", all[0].Kind)
	}
	if !all[0].At.Equal(base.Add(3 * time.Second)) {
		t.Fatalf("expected time to round-trip, got %v", all[0].At)
	}

	scans, err := j.Recent(ctx, Filter{Store: activity.StoreScans})
	if err != nil {
		t.Fatalf("recent scans: %v", err)
	}
	if len(scans) != 2 {
		t.Fatalf("expected 2 scan events, got %d", len(scans))
	}

	limited, err := j.Recent(ctx, Filter{Op: activity.OpSave, Limit: 1})
	if err != nil {
		t.Fatalf("recent limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Subject != "s1" {
		t.Fatalf("unexpected limited result: %+v", limited)
	}
}

func TestSummaryAggregatesByStoreAndOp(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	for _, ev := range []activity.Event{
		{Store: activity.StoreScans, Op: activity.OpSave, Subject: "a", Bytes: 100},
		{Store: activity.StoreScans, Op: activity.OpSave, Subject: "b", Bytes: 150},
		{Store: activity.StoreScans, Op: activity.OpEvict, Subject: "a", Bytes: 100},
	} {
		if err := j.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	rows, err := j.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 summary rows, got %+v", rows)
	}
	// ordered by store, op: evict before save
	if rows[0].Op != activity.OpEvict || rows[0].Count != 1 || rows[0].Bytes != 100 {
		t.Fatalf("unexpected evict row: %+v", rows[0])
	}
	if rows[1].Op != activity.OpSave || rows[1].Count != 2 || rows[1].Bytes != 250 {
		t.Fatalf("unexpected save row: %+v", rows[1])
	}
}

func TestPruneRemovesOlderEvents(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	cutoff := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{
		cutoff.Add(-time.Hour),
		cutoff.Add(-500 * time.Millisecond),
		cutoff,
		cutoff.Add(500 * time.Millisecond),
	} {
		if err := j.Record(ctx, activity.Event{Store: activity.StoreImages, Op: activity.OpSave, Subject: "x", At: at}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	removed, err := j.Prune(ctx, cutoff)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 pruned, got %d", removed)
	}
	left, err := j.Recent(ctx, Filter{})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(left))
	}
}

func TestObserveRecordsEvent(t *testing.T) {
	j := testJournal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	activity.Emit(ctx, j, activity.Event{Store: activity.StoreScans, Op: activity.OpDelete, Subject: "gone", Bytes: 42})

	events, err := j.Recent(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 || events[0].Op != activity.OpDelete {
		t.Fatalf("expected delete event, got %+v", events)
	}
}

func TestObserveLogsFailureToJournalLogger(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var logs bytes.Buffer
	j.SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	j.Observe(context.Background(), activity.Event{Store: activity.StoreImages, Op: activity.OpSave, Subject: "a.jpg"})

	out := logs.String()
	if !strings.Contains(out, "journal record failed") || !strings.Contains(out, "subject=a.jpg") {
		t.Fatalf("expected failure logged to journal logger, got %q", out)
	}
}
