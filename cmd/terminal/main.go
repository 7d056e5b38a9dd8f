package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	goeen_log "github.com/eencloud/goeen/log"

	"github.com/arman-karamii/windows-android-bridge/internal/core"
	"github.com/arman-karamii/windows-android-bridge/internal/gateway"
	"github.com/arman-karamii/windows-android-bridge/internal/session"
	"github.com/arman-karamii/windows-android-bridge/internal/terminal"
)

// auditedHandler records every raw gateway payload before the session
// interprets it.
type auditedHandler struct {
	next  gateway.ResultHandler
	audit *core.AuditLogger

	logger *goeen_log.Logger
}

func (h *auditedHandler) HandleResult(raw string) {
	if err := h.audit.Log("gateway", []byte(raw)); err != nil {
		h.logger.Warningf("Audit write failed: %v", err)
	}
	h.next.HandleResult(raw)
}

func (h *auditedHandler) HandleCancel() {
	if err := h.audit.Log("gateway", []byte(`{"event":"cancel"}`)); err != nil {
		h.logger.Warningf("Audit write failed: %v", err)
	}
	h.next.HandleCancel()
}

func main() {
	logger := goeen_log.NewContext(os.Stdout, "", goeen_log.LevelInfo).GetLogger("terminal", goeen_log.LevelInfo)
	logger.Info("Starting terminal application...")

	dataDir := core.GetDataDirectory()
	audit := core.NewAuditLogger(filepath.Join(dataDir, "audit"), 100, logger)

	sess := session.New(logger)

	mode := os.Getenv("GATEWAY_MODE")
	if mode == "" {
		mode = gateway.ModeApprove
	}
	delay := 2 * time.Second
	if ms := os.Getenv("GATEWAY_RESULT_DELAY_MS"); ms != "" {
		if parsed, err := strconv.Atoi(ms); err == nil && parsed >= 0 {
			delay = time.Duration(parsed) * time.Millisecond
		}
	}
	sim := gateway.NewSimulator(logger, &auditedHandler{next: sess, audit: audit, logger: logger}, mode, delay)
	sess.SetGateway(sim)

	addr := ":8080"
	if port := os.Getenv("TERMINAL_PORT"); port != "" {
		addr = ":" + port
	}
	server := terminal.NewServer(addr, logger, sess)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Terminal server failed: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := server.Stop(ctx); err != nil {
		logger.Errorf("Terminal server stop failed: %v", err)
	}
	cancel()
	sim.Stop()
	logger.Info("Terminal application stopped")
}
