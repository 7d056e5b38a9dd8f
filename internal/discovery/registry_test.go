package discovery

import (
	"fmt"
	"os"
	"testing"
	"time"

	goeen_log "github.com/eencloud/goeen/log"
)

func testLogger() *goeen_log.Logger {
	return goeen_log.NewContext(os.Stdout, "", goeen_log.LevelError).GetLogger("discovery-test", goeen_log.LevelError)
}

func TestUpsertAndSnapshot(t *testing.T) {
	r := NewRegistry(testLogger(), nil)

	r.Upsert("192.168.1.10", StatusOnline)
	r.Upsert("192.168.1.5", StatusOffline)
	r.Upsert("192.168.1.10", StatusOffline) // update, not duplicate

	records, selected := r.Snapshot()
	if len(records) != 2 {
		t.Fatalf("records: got %d, want 2", len(records))
	}
	if selected != "" {
		t.Errorf("nothing was selected yet, got %q", selected)
	}
	// Snapshot is address-ordered.
	if records[0].Address != "192.168.1.10" || records[1].Address != "192.168.1.5" {
		t.Errorf("snapshot order wrong: %+v", records)
	}
	if records[0].Status != StatusOffline {
		t.Errorf("upsert did not update status: %+v", records[0])
	}
}

// Records are never evicted, whatever their status or age.
func TestRegistryGrowsMonotonically(t *testing.T) {
	r := NewRegistry(testLogger(), nil)

	for i := 1; i <= 50; i++ {
		r.Upsert(fmt.Sprintf("192.168.1.%d", i), StatusOffline)
	}
	before, _ := r.Snapshot()

	r.Reselect(nil)
	after, _ := r.Snapshot()
	if len(after) != len(before) {
		t.Errorf("reselect must not evict records: %d -> %d", len(before), len(after))
	}
}

// The reselect condition, spelled out: keep the selection only when one
// exists and its record is online; anything else repoints or clears it.
func TestReselectConditionTable(t *testing.T) {
	tests := []struct {
		name           string
		selected       string
		selectedStatus DeviceStatus
		onlineOrder    []string
		wantAddr       string
		wantOK         bool
	}{
		{"unselected, candidates", "", StatusUnknown, []string{"a", "b"}, "a", true},
		{"unselected, no candidates", "", StatusUnknown, nil, "", false},
		{"selected online, candidates", "sel", StatusOnline, []string{"a"}, "sel", true},
		{"selected online, no candidates", "sel", StatusOnline, nil, "sel", true},
		{"selected offline, candidates", "sel", StatusOffline, []string{"a", "b"}, "a", true},
		{"selected offline, no candidates", "sel", StatusOffline, nil, "", false},
		{"selected unknown, candidates", "sel", StatusUnknown, []string{"b"}, "b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(testLogger(), nil)
			if tt.selected != "" {
				r.Upsert(tt.selected, StatusOnline)
				r.Reselect([]string{tt.selected})
				r.Upsert(tt.selected, tt.selectedStatus)
			}
			for _, addr := range tt.onlineOrder {
				r.Upsert(addr, StatusOnline)
			}

			addr, ok := r.Reselect(tt.onlineOrder)
			if addr != tt.wantAddr || ok != tt.wantOK {
				t.Errorf("Reselect = (%q, %v), want (%q, %v)", addr, ok, tt.wantAddr, tt.wantOK)
			}

			if rec, selOK := r.Selected(); selOK != tt.wantOK {
				t.Errorf("Selected() ok = %v, want %v", selOK, tt.wantOK)
			} else if selOK && rec.Address != tt.wantAddr {
				t.Errorf("Selected() = %q, want %q", rec.Address, tt.wantAddr)
			}
		})
	}
}

func TestUpsertStampsLastSeen(t *testing.T) {
	r := NewRegistry(testLogger(), nil)

	before := time.Now()
	r.Upsert("192.168.1.7", StatusOnline)

	rec, ok := r.Get("192.168.1.7")
	if !ok {
		t.Fatal("record missing after upsert")
	}
	if rec.LastSeen.Before(before) || rec.LastSeen.After(time.Now()) {
		t.Errorf("lastSeen out of range: %v", rec.LastSeen)
	}
}
