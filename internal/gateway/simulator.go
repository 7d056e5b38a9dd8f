package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/eencloud/goeen/log"
)

// Simulator behaviors, selected per instance (GATEWAY_MODE in the
// terminal binary).
const (
	ModeApprove = "approve"
	ModeDecline = "decline"
	ModeCancel  = "cancel"
	ModeSilent  = "silent" // never resolves; exercises the timeout path
)

// Simulator stands in for the platform payment application so the
// terminal can run without it. Each submission resolves once after a
// fixed delay according to the configured mode.
type Simulator struct {
	logger   *log.Logger
	handler  ResultHandler
	mode     string
	delay    time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSimulator(logger *log.Logger, handler ResultHandler, mode string, delay time.Duration) *Simulator {
	return &Simulator{
		logger:   logger,
		handler:  handler,
		mode:     mode,
		delay:    delay,
		stopChan: make(chan struct{}),
	}
}

func (s *Simulator) Submit(ctx context.Context, req Request) error {
	select {
	case <-s.stopChan:
		return fmt.Errorf("simulator stopped")
	default:
	}

	s.logger.Infof("Simulated hand-off: session %s amount %s (%s)", req.SessionID, req.TotalAmount, s.mode)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-time.After(s.delay):
		case <-s.stopChan:
			return
		}

		switch s.mode {
		case ModeApprove:
			s.handler.HandleResult(approvedPayload(req.TotalAmount))
		case ModeDecline:
			s.handler.HandleResult(`{"resultCode":"051","resultDescription":"Insufficient funds"}`)
		case ModeCancel:
			s.handler.HandleCancel()
		case ModeSilent:
			// Crash/kill of the payment application: no delivery at all.
		default:
			s.logger.Errorf("Unknown simulator mode %q, dropping result", s.mode)
		}
	}()
	return nil
}

func (s *Simulator) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func approvedPayload(amount string) string {
	now := time.Now()
	doc := map[string]string{
		"resultCode":                "000",
		"terminalID":                "12345678",
		"maskedCardNumber":          "603799******1234",
		"dateOfTransaction":         now.Format("20060102"),
		"timeOfTransaction":         now.Format("150405"),
		"transactionAmount":         amount,
		"retrievalReferencedNumber": fmt.Sprintf("%06d", now.Unix()%1000000),
		"referenceID":               fmt.Sprintf("%012d", now.UnixNano()%1000000000000),
	}
	raw, _ := json.Marshal(doc)
	return string(raw)
}
