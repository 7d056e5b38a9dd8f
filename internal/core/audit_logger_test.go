package core

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goeen_log "github.com/eencloud/goeen/log"
)

func testLogger() *goeen_log.Logger {
	return goeen_log.NewContext(os.Stdout, "", goeen_log.LevelError).GetLogger("core-test", goeen_log.LevelError)
}

func readEntries(t *testing.T, dir string) []map[string]json.RawMessage {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "audit_*.jsonl"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one audit file in %s, got %v (err %v)", dir, matches, err)
	}

	file, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("opening audit file: %v", err)
	}
	defer func() { _ = file.Close() }()

	var entries []map[string]json.RawMessage
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("decoding audit line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestAuditLoggerWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	audit := NewAuditLogger(dir, 100, testLogger())

	if err := audit.Log("192.168.1.10", []byte(`{"action":"START_PAYMENT","amount":25000}`)); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}
	if err := audit.Log("gateway", []byte(`{"resultCode":"000"}`)); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}

	entries := readEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	var source string
	_ = json.Unmarshal(entries[0]["source"], &source)
	if source != "192.168.1.10" {
		t.Errorf("first entry source = %q", source)
	}
	if string(entries[1]["raw_json"]) != `{"resultCode":"000"}` {
		t.Errorf("second entry raw_json = %s", entries[1]["raw_json"])
	}
	if len(entries[0]["timestamp"]) == 0 {
		t.Error("entry missing timestamp")
	}
}

func TestAuditLoggerQuotesNonJSON(t *testing.T) {
	dir := t.TempDir()
	audit := NewAuditLogger(dir, 100, testLogger())

	if err := audit.Log("gateway", []byte("not json at all")); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}

	entries := readEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	var raw string
	if err := json.Unmarshal(entries[0]["raw_json"], &raw); err != nil {
		t.Fatalf("raw_json is not a quoted string: %v", err)
	}
	if raw != "not json at all" {
		t.Errorf("raw_json = %q", raw)
	}
}

func TestAuditLoggerStats(t *testing.T) {
	dir := t.TempDir()
	audit := NewAuditLogger(dir, 100, testLogger())

	stats := audit.GetStats()
	if !strings.HasPrefix(stats["current_file"].(string), dir) {
		t.Errorf("current_file = %v, want under %s", stats["current_file"], dir)
	}
	if stats["max_size_mb"].(int64) != 100 {
		t.Errorf("max_size_mb = %v", stats["max_size_mb"])
	}
}
