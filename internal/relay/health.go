package relay

import (
	"sync"
	"time"
)

// degradedThreshold is the consecutive-failure count after which the
// link to the selected terminal is reported degraded.
const degradedThreshold = 3

// LinkHealth keeps success/failure bookkeeping for forwarded sales.
// It never gates forwarding — failover is a manual rescan — it only
// feeds the device-status snapshot so an operator can see a dying link
// before the next sale fails.
type LinkHealth struct {
	mu           sync.RWMutex
	successCount int64
	failureCount int64
	consecutive  int
	lastResponse time.Time
}

func NewLinkHealth() *LinkHealth {
	return &LinkHealth{}
}

func (h *LinkHealth) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successCount++
	h.consecutive = 0
	h.lastResponse = time.Now()
}

func (h *LinkHealth) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failureCount++
	h.consecutive++
	h.lastResponse = time.Now()
}

// LinkStats is the snapshot view of the forwarding link.
type LinkStats struct {
	Forwarded int64  `json:"forwarded"`
	Failed    int64  `json:"failed"`
	State     string `json:"state"`
}

func (h *LinkHealth) Stats() LinkStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	state := "OK"
	if h.consecutive >= degradedThreshold {
		state = "DEGRADED"
	}
	if h.successCount+h.failureCount == 0 {
		state = "IDLE"
	}
	return LinkStats{
		Forwarded: h.successCount,
		Failed:    h.failureCount,
		State:     state,
	}
}
