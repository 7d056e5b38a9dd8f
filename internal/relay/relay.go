package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eencloud/goeen/log"

	"github.com/arman-karamii/windows-android-bridge/internal/discovery"
	"github.com/arman-karamii/windows-android-bridge/internal/session"
)

var (
	// ErrNoDevice means no terminal is selected (or the selection is not
	// online); the caller should prompt for a device scan.
	ErrNoDevice = errors.New("no terminal selected")

	// ErrDeviceUnreachable means the forward itself failed at the
	// transport level. The selection is left alone: failover is a manual
	// rescan, never automatic.
	ErrDeviceUnreachable = errors.New("terminal unreachable")
)

// forwardMargin is added on top of the sale's own timeout so the
// terminal, not the relay, is the one that times the payment out. The
// relay deadline only catches a terminal that stopped answering at all.
const forwardMargin = 30 * time.Second

// Relay forwards sale requests to the selected terminal verbatim and
// relays the terminal's verdict back unchanged.
type Relay struct {
	logger   *log.Logger
	registry *discovery.Registry
	port     int
	health   *LinkHealth
}

func NewRelay(logger *log.Logger, registry *discovery.Registry, port int) *Relay {
	if port == 0 {
		port = discovery.DefaultTerminalPort
	}
	return &Relay{
		logger:   logger,
		registry: registry,
		port:     port,
		health:   NewLinkHealth(),
	}
}

func (rl *Relay) Health() LinkStats {
	return rl.health.Stats()
}

// Forward posts the sale to the selected terminal and returns its
// response body as-is. The terminal's verdict is never reinterpreted
// here; an error return means the sale never reached a verdict.
func (rl *Relay) Forward(ctx context.Context, req session.SaleRequest) (session.SaleResponse, error) {
	rec, ok := rl.registry.Selected()
	if !ok || rec.Status != discovery.StatusOnline {
		return session.SaleResponse{}, ErrNoDevice
	}

	timeout := session.DefaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Millisecond
	}
	timeout += forwardMargin

	body, err := json.Marshal(req)
	if err != nil {
		return session.SaleResponse{}, fmt.Errorf("encoding sale request: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/pay/sale", rec.Address, rl.port)
	rl.logger.Infof("Forwarding sale of %d to %s (timeout %s)", req.Amount, rec.Address, timeout)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return session.SaleResponse{}, fmt.Errorf("building sale request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		rl.health.RecordFailure()
		rl.logger.Errorf("Forward to %s failed: %v", rec.Address, err)
		return session.SaleResponse{}, fmt.Errorf("%w: %s: %v", ErrDeviceUnreachable, rec.Address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rl.health.RecordFailure()
		return session.SaleResponse{}, fmt.Errorf("%w: %s answered HTTP %d", ErrDeviceUnreachable, rec.Address, resp.StatusCode)
	}

	var sale session.SaleResponse
	if err := json.NewDecoder(resp.Body).Decode(&sale); err != nil {
		rl.health.RecordFailure()
		return session.SaleResponse{}, fmt.Errorf("%w: %s sent an unreadable response: %v", ErrDeviceUnreachable, rec.Address, err)
	}

	rl.health.RecordSuccess()
	rl.logger.Infof("Terminal %s answered %s", rec.Address, sale.Status)
	return sale, nil
}
