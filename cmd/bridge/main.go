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
	"github.com/arman-karamii/windows-android-bridge/internal/discovery"
	"github.com/arman-karamii/windows-android-bridge/internal/relay"
)

func main() {
	logger := goeen_log.NewContext(os.Stdout, "", goeen_log.LevelInfo).GetLogger("bridge", goeen_log.LevelInfo)
	logger.Info("Starting bridge application...")

	dataDir := core.GetDataDirectory()
	store, err := discovery.OpenStore(filepath.Join(dataDir, "badger_db"), logger)
	if err != nil {
		logger.Fatalf("Failed to open device store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Errorf("Failed to close device store: %v", err)
		}
	}()

	audit := core.NewAuditLogger(filepath.Join(dataDir, "audit"), 100, logger)

	registry := discovery.NewRegistry(logger, store)

	terminalPort := discovery.DefaultTerminalPort
	if port := os.Getenv("TERMINAL_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			terminalPort = parsed
		}
	}

	concurrency := 0
	if c := os.Getenv("SCAN_CONCURRENCY"); c != "" {
		if parsed, err := strconv.Atoi(c); err == nil {
			concurrency = parsed
		}
	}
	scanner := discovery.NewScanner(logger, registry, discovery.NewHTTPProber(terminalPort), concurrency)

	rl := relay.NewRelay(logger, registry, terminalPort)
	channel := relay.NewChannel(logger, registry, scanner, rl, audit)

	addr := ":6743"
	if port := os.Getenv("BRIDGE_PORT"); port != "" {
		addr = ":" + port
	}
	server := relay.NewServer(addr, logger, channel, registry, rl)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Bridge server failed: %v", err)
		}
	}()

	// Warm the registry once at startup so the first client gets a live
	// snapshot; later sweeps are client-triggered only.
	go func() {
		if selected, ok, err := scanner.Scan(context.Background()); err != nil {
			logger.Errorf("Startup sweep failed: %v", err)
		} else if ok {
			logger.Infof("Startup sweep selected terminal %s", selected)
		} else {
			logger.Warningf("Startup sweep found no online terminals")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := server.Stop(ctx); err != nil {
		logger.Errorf("Bridge server stop failed: %v", err)
	}
	cancel()
	logger.Info("Bridge application stopped")
}
