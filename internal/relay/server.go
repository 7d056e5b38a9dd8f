package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/eencloud/goeen/log"

	"github.com/arman-karamii/windows-android-bridge/internal/discovery"
)

// Server is the bridge's network surface: the websocket the POS client
// speaks over, plus a read-only status endpoint for operators. Sales
// run over the websocket only; there is no HTTP sale path on this side.
type Server struct {
	*http.Server
	Logger   *log.Logger
	Channel  *Channel
	registry *discovery.Registry
	relay    *Relay
	started  time.Time
}

func NewServer(addr string, logger *log.Logger, channel *Channel, registry *discovery.Registry, rl *Relay) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: &http.Server{
			Addr:           addr,
			Handler:        mux,
			ReadTimeout:    5 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		Logger:   logger,
		Channel:  channel,
		registry: registry,
		relay:    rl,
		started:  time.Now(),
	}

	mux.HandleFunc("/ws", s.Channel.Handle)
	mux.HandleFunc("/status", s.statusHandler)

	return s
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	records, selected := s.registry.Snapshot()

	status := map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"current_device": selected,
		"devices":        records,
		"link":           s.relay.Health(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.Logger.Infof("Starting bridge server on %s", s.Addr)
	return s.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.Logger.Info("Shutting down bridge server...")
	return s.Shutdown(ctx)
}
