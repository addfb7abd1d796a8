package statestore

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestSaveLoadRoundTripsSessions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway-state.json")
	store := New(path)

	model := "mock-1"
	records := []SessionRecord{
		{SessionID: "s1", GatewaySessionID: "g1", Provider: "mock", Model: &model, Connected: true, LastSeenEpoch: 100},
	}
	if err := store.Save(records); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(func(p string) bool { return p == "mock" || p == "claude" || p == "codex" || p == "gemini" })
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].SessionID != "s1" {
		t.Fatalf("unexpected loaded records: %+v", loaded)
	}
	if loaded[0].Connected {
		t.Fatal("expected Connected forced to false on load")
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	loaded, err := store.Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty slice, got %+v", loaded)
	}
}

func TestLoadSkipsUnrecognizedProvider(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "gateway-state.json"))

	records := []SessionRecord{
		{SessionID: "s1", GatewaySessionID: "g1", Provider: "mock"},
		{SessionID: "s2", GatewaySessionID: "g2", Provider: "unknown-provider"},
	}
	if err := store.Save(records); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(func(p string) bool { return p == "mock" })
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].SessionID != "s1" {
		t.Fatalf("expected only the mock session to survive, got %+v", loaded)
	}
}

func TestLoadQuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway-state.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	store := New(path)
	loaded, err := store.Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty slice on corrupt file, got %+v", loaded)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected the corrupt file to be moved aside")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var foundQuarantine bool
	for _, e := range entries {
		if len(e.Name()) > len("gateway-state.json.corrupt.") && e.Name()[:len("gateway-state.json.corrupt.")] == "gateway-state.json.corrupt." {
			suffix := e.Name()[len("gateway-state.json.corrupt."):]
			if _, err := strconv.ParseInt(suffix, 10, 64); err == nil {
				foundQuarantine = true
			}
		}
	}
	if !foundQuarantine {
		t.Fatalf("expected a gateway-state.json.corrupt.<epoch> file, found: %v", entries)
	}
}
