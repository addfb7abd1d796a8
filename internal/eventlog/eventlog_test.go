package eventlog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestJSONLWriterAppendsPerSessionLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewJSONLWriter(dir)
	if err != nil {
		t.Fatalf("NewJSONLWriter failed: %v", err)
	}
	defer w.Close()

	if err := w.Append(Event{MetaSessionID: "s1", CreatedAtEpoch: 1, Kind: KindUserTurn}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Append(Event{MetaSessionID: "s1", CreatedAtEpoch: 2, Kind: KindAssistantReply}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "s1.jsonl"))
	if err != nil {
		t.Fatalf("read session file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}

func TestStoreUpsertAndGetMetaSession(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	ms := MetaSession{
		MetaSessionID:  "s1",
		Project:        "demo",
		Cwd:            "/work",
		ActiveProvider: "mock",
		ActiveModel:    "mock-1",
		UpdatedAtEpoch: time.Now().Unix(),
	}
	if err := store.UpsertMetaSession(ctx, ms); err != nil {
		t.Fatalf("UpsertMetaSession failed: %v", err)
	}

	got, err := store.GetMetaSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetMetaSession failed: %v", err)
	}
	if got == nil || got.ActiveProvider != "mock" || got.Project != "demo" {
		t.Fatalf("unexpected meta session: %+v", got)
	}

	// Upsert again with a changed field, confirm it overwrites rather than
	// duplicating the row.
	ms.ActiveModel = "mock-2"
	if err := store.UpsertMetaSession(ctx, ms); err != nil {
		t.Fatalf("second UpsertMetaSession failed: %v", err)
	}
	got, err = store.GetMetaSession(ctx, "s1")
	if err != nil || got.ActiveModel != "mock-2" {
		t.Fatalf("expected updated model, got %+v, err=%v", got, err)
	}
}

func TestStoreRecentEventsOrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for i, kind := range []Kind{KindControlRequest, KindControlResponse, KindUserTurn} {
		if err := store.AppendEvent(ctx, Event{MetaSessionID: "s1", CreatedAtEpoch: int64(i + 1), Kind: kind}); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	events, err := store.RecentEvents(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 2 || events[0].Kind != KindUserTurn {
		t.Fatalf("expected newest-first ordering, got %+v", events)
	}
}

func TestDebugTrailStripsANSIAndWritesPerSession(t *testing.T) {
	dir := t.TempDir()
	trail, err := NewDebugTrail(DebugTrailConfig{Enabled: true, Dir: dir, QueueSize: 16}, slog.Default())
	if err != nil {
		t.Fatalf("NewDebugTrail failed: %v", err)
	}

	trail.Log(DebugTrailEntry{MetaSessionID: "s1", ContentRaw: "\x1b[31merror\x1b[0m plain"})
	if err := trail.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "s1.ndjson"))
	if err != nil {
		t.Fatalf("read debug trail: %v", err)
	}
	if strings.Contains(string(data), "\x1b[31m") {
		t.Fatalf("expected ANSI sequence stripped: %q", data)
	}
	if !strings.Contains(string(data), "error plain") {
		t.Fatalf("expected readable content to remain: %q", data)
	}
}

func TestDebugTrailDisabledIsNoOp(t *testing.T) {
	dir := t.TempDir()
	trail, err := NewDebugTrail(DebugTrailConfig{Enabled: false}, slog.Default())
	if err != nil {
		t.Fatalf("NewDebugTrail failed: %v", err)
	}
	trail.Log(DebugTrailEntry{MetaSessionID: "s1", ContentRaw: "hello"})
	if err := trail.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files written when disabled, found %d", len(entries))
	}
}

func TestReplayFileReportsDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	w, err := NewJSONLWriter(dir)
	if err != nil {
		t.Fatalf("NewJSONLWriter failed: %v", err)
	}
	w.Append(Event{MetaSessionID: "s1", CreatedAtEpoch: 1, Kind: KindControlRequest, RequestID: "r1"})
	w.Append(Event{MetaSessionID: "s1", CreatedAtEpoch: 2, Kind: KindControlResponse, RequestID: "r1"})
	w.Append(Event{MetaSessionID: "s1", CreatedAtEpoch: 3, Kind: KindUserTurn})
	w.Close()

	report, err := ReplayFile(w.PathFor("s1"))
	if err != nil {
		t.Fatalf("ReplayFile failed: %v", err)
	}
	if report.TotalEvents != 3 || !report.DeterministicOrder || len(report.Warnings) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.ByType[string(KindControlRequest)] != 1 {
		t.Fatalf("expected 1 control_request, got %+v", report.ByType)
	}
}

func TestReplayFileFlagsMismatchedRequestResponseCounts(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewJSONLWriter(dir)
	w.Append(Event{MetaSessionID: "s1", CreatedAtEpoch: 1, Kind: KindControlRequest, RequestID: "r1"})
	w.Append(Event{MetaSessionID: "s1", CreatedAtEpoch: 2, Kind: KindControlRequest, RequestID: "r2"})
	w.Append(Event{MetaSessionID: "s1", CreatedAtEpoch: 3, Kind: KindControlResponse, RequestID: "r1"})
	w.Close()

	report, err := ReplayFile(w.PathFor("s1"))
	if err != nil {
		t.Fatalf("ReplayFile failed: %v", err)
	}
	if report.DeterministicOrder {
		t.Fatal("expected DeterministicOrder=false on mismatched request/response counts")
	}
	if len(report.Warnings) == 0 {
		t.Fatal("expected a warning about the mismatch")
	}
}

func TestReplayFileFlagsOutOfOrderTimestamps(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewJSONLWriter(dir)
	w.Append(Event{MetaSessionID: "s1", CreatedAtEpoch: 5, Kind: KindUserTurn})
	w.Append(Event{MetaSessionID: "s1", CreatedAtEpoch: 1, Kind: KindAssistantReply})
	w.Close()

	report, err := ReplayFile(w.PathFor("s1"))
	if err != nil {
		t.Fatalf("ReplayFile failed: %v", err)
	}
	if report.DeterministicOrder {
		t.Fatal("expected DeterministicOrder=false on out-of-order timestamps")
	}
}
