package discovery

import (
	"sort"
	"sync"
	"time"

	"github.com/eencloud/goeen/log"
)

type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
	StatusUnknown DeviceStatus = "unknown"
)

// DeviceRecord is one probed address. Records are never evicted; the
// registry only grows across sweeps.
type DeviceRecord struct {
	Address  string       `json:"ip"`
	Status   DeviceStatus `json:"status"`
	LastSeen time.Time    `json:"lastSeen"`
}

// Registry maps addresses to their last known probe result and holds the
// single selected terminal. The selection is a weak reference: it names
// a record but a sweep can repoint or clear it at any time.
type Registry struct {
	logger *log.Logger
	store  *Store // nil means in-memory only

	mu       sync.RWMutex
	records  map[string]DeviceRecord
	selected string
}

func NewRegistry(logger *log.Logger, store *Store) *Registry {
	r := &Registry{
		logger:  logger,
		store:   store,
		records: make(map[string]DeviceRecord),
	}

	if store != nil {
		persisted, err := store.Load()
		if err != nil {
			logger.Errorf("Failed to load persisted device records: %v", err)
			return r
		}
		for _, rec := range persisted {
			// Health is not trusted across a restart; the next sweep
			// re-establishes it.
			rec.Status = StatusUnknown
			r.records[rec.Address] = rec
		}
		if len(persisted) > 0 {
			logger.Infof("Loaded %d device records from previous sweeps", len(persisted))
		}
	}
	return r
}

// Upsert records a probe outcome for an address.
func (r *Registry) Upsert(address string, status DeviceStatus) {
	rec := DeviceRecord{Address: address, Status: status, LastSeen: time.Now()}

	r.mu.Lock()
	r.records[address] = rec
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Put(rec); err != nil {
			r.logger.Errorf("Failed to persist device record %s: %v", address, err)
		}
	}
}

// Get returns the record for an address.
func (r *Registry) Get(address string) (DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[address]
	return rec, ok
}

// Selected returns the currently selected device's record, if a device
// is selected at all.
func (r *Registry) Selected() (DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selected == "" {
		return DeviceRecord{}, false
	}
	rec, ok := r.records[r.selected]
	return rec, ok
}

// Reselect applies the selection policy after a sweep. The selection is
// kept only when one exists AND its record is online; otherwise the
// first of the sweep's online completions takes over, and with no online
// completions the selection becomes absent. onlineOrder is completion
// order, so which device wins a tie depends on network timing — that is
// intentional, not a defect to fix.
func (r *Registry) Reselect(onlineOrder []string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.selected != "" {
		if rec, ok := r.records[r.selected]; ok && rec.Status == StatusOnline {
			return r.selected, true
		}
	}

	if len(onlineOrder) > 0 {
		if r.selected != onlineOrder[0] {
			r.logger.Infof("Selected terminal: %s", onlineOrder[0])
		}
		r.selected = onlineOrder[0]
		return r.selected, true
	}

	if r.selected != "" {
		r.logger.Warningf("Selected terminal %s is gone and no replacement is online", r.selected)
	}
	r.selected = ""
	return "", false
}

// Snapshot returns all known records ordered by address, plus the
// selected address ("" when none).
func (r *Registry) Snapshot() ([]DeviceRecord, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DeviceRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, r.selected
}
