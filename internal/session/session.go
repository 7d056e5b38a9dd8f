package session

import (
	"context"
	"sync"
	"time"

	"github.com/eencloud/goeen/log"
	"github.com/google/uuid"

	"github.com/arman-karamii/windows-android-bridge/internal/gateway"
	"github.com/arman-karamii/windows-android-bridge/internal/translator"
)

// DefaultTimeout applies when a sale request does not carry its own.
const DefaultTimeout = 120 * time.Second

const (
	StatusApproved = "APPROVED"
	StatusDeclined = "DECLINED"
	StatusTimeout  = "TIMEOUT"
	StatusRejected = "REJECTED"
)

type SaleRequest struct {
	Amount  int `json:"amount"`
	Timeout int `json:"timeout,omitempty"` // milliseconds
}

type SaleResponse struct {
	Status   string `json:"status"`
	AuthCode string `json:"authCode"`
	RRN      string `json:"rrn"`
}

// outcome carries a settlement result into the waiting sale. A nil
// Transaction means the result could not be interpreted (translator
// failure) or the payment application cancelled without a payload.
type outcome struct {
	tx *translator.Transaction
}

// slot is the correlation state for the one in-flight sale. The token
// ties the waiting request to its slot so late timeout cleanup cannot
// tear down a newer request's slot.
type slot struct {
	token uuid.UUID
	done  chan outcome
}

// Session is the per-terminal state machine: it accepts at most one sale
// at a time, hands it to the external payment gateway and correlates the
// eventual (or absent) callback back to the waiting request. The slot is
// touched from two independent execution contexts, the request path and
// the gateway callback path; every existence check, resolution and clear
// happens inside one critical section.
type Session struct {
	logger  *log.Logger
	gateway gateway.Gateway

	mu   sync.Mutex
	slot *slot
}

func New(logger *log.Logger) *Session {
	return &Session{logger: logger}
}

// SetGateway wires the external payment boundary. Set once at startup,
// before the first sale; the simulator needs the session as its result
// handler, hence the two-step construction.
func (s *Session) SetGateway(gw gateway.Gateway) {
	s.gateway = gw
}

// Sale runs one payment from acceptance to final response. While a slot
// is occupied any further sale is answered REJECTED without touching the
// in-flight operation. The accepting call parks on the slot until either
// the gateway callback resolves it or the timeout elapses, whichever
// comes first; the loser of that race is a silent no-op.
//
// Cancellation is timeout-driven only: a disconnected caller does not
// abort the sale, it just never sees the response.
func (s *Session) Sale(ctx context.Context, req SaleRequest) SaleResponse {
	timeout := DefaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Millisecond
	}

	s.mu.Lock()
	if s.slot != nil {
		s.mu.Unlock()
		s.logger.Warningf("Sale of %d rejected: another sale is in flight", req.Amount)
		return SaleResponse{Status: StatusRejected}
	}
	sl := &slot{token: uuid.New(), done: make(chan outcome, 1)}
	s.slot = sl
	s.mu.Unlock()

	// The slot is destroyed on every exit path. After a resolution the
	// token no longer matches anything and this is a no-op.
	defer s.release(sl.token)

	s.logger.Infof("Sale accepted: amount %d, timeout %s, correlation %s", req.Amount, timeout, sl.token)

	if err := s.gateway.Submit(ctx, gateway.NewRequest(req.Amount)); err != nil {
		s.logger.Errorf("Gateway hand-off failed: %v", err)
		return SaleResponse{Status: StatusDeclined}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-sl.done:
		if o.tx == nil {
			s.logger.Warningf("Sale %s finished without an interpretable settlement", sl.token)
			return SaleResponse{Status: StatusDeclined}
		}
		resp := SaleResponse{
			Status:   StatusDeclined,
			AuthCode: o.tx.ResponseCode,
			RRN:      o.tx.ReferenceNo,
		}
		if o.tx.IsSuccess() {
			resp.Status = StatusApproved
			s.logger.Infof("Sale %s approved: amount %s rrn %s", sl.token, o.tx.Amount, o.tx.ReferenceNo)
		} else {
			s.logger.Infof("Sale %s declined: code %s (%s)", sl.token, o.tx.ResponseCode, o.tx.SettleFailReason)
		}
		return resp
	case <-timer.C:
		s.logger.Warningf("Sale %s timed out after %s", sl.token, timeout)
		return SaleResponse{Status: StatusTimeout}
	}
}

// Busy reports whether a sale is currently awaiting its result.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot != nil
}

// HandleResult receives the raw settlement payload from the platform
// callback. A payload arriving when no sale is pending (the request
// already timed out, or the callback was re-delivered) is discarded with
// no observable effect beyond logging.
func (s *Session) HandleResult(raw string) {
	defer s.recoverResultPanic()

	tx, err := translator.Translate(raw)
	if err != nil {
		s.logger.Errorf("Settlement payload rejected by translator: %v", err)
		if !s.resolve(outcome{}) {
			s.logger.Debugf("Uninterpretable settlement arrived outside any sale, discarded")
		}
		return
	}

	if !s.resolve(outcome{tx: tx}) {
		s.logger.Warningf("Late settlement result discarded (code %s)", tx.ResponseCode)
	}
}

// HandleCancel receives the explicit cancel signal (no payload). A
// pending sale resolves as declined; the POS client should not have to
// sit out the full timeout for a cancel the user already confirmed.
func (s *Session) HandleCancel() {
	defer s.recoverResultPanic()

	if s.resolve(outcome{}) {
		s.logger.Infof("Payment cancelled by the payment application")
	} else {
		s.logger.Debugf("Cancel signal arrived outside any sale, discarded")
	}
}

// resolve delivers an outcome to the pending sale, if any. Clearing the
// slot and sending happen under the lock, so at most one resolution ever
// reaches a waiter and the buffered send cannot block.
func (s *Session) resolve(o outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return false
	}
	s.slot.done <- o
	s.slot = nil
	return true
}

// release clears the slot on the waiter's way out. Token-matched: if the
// callback already resolved this sale (slot nil) or a newer sale somehow
// owns the slot, nothing happens.
func (s *Session) release(token uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot != nil && s.slot.token == token {
		s.slot = nil
	}
}

// Result handling is the top boundary for the platform callback; a bug
// there must not take down the session for subsequent sales.
func (s *Session) recoverResultPanic() {
	if r := recover(); r != nil {
		s.logger.Errorf("Recovered processing settlement result: %v", r)
	}
}
