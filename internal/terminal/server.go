package terminal

import (
	"context"
	"net/http"
	"time"

	"github.com/eencloud/goeen/log"
	"github.com/gorilla/websocket"

	"github.com/arman-karamii/windows-android-bridge/internal/session"
)

// Server is the terminal's network surface: the health probe used by
// discovery, the sale endpoint the relay forwards to, and a diagnostic
// websocket. Read timeout stays generous enough for slow handhelds but
// the write timeout must outlive the longest sale wait, so it is left to
// the handler's own deadline.
type Server struct {
	*http.Server
	Logger   *log.Logger
	Session  *session.Session
	upgrader websocket.Upgrader
}

func NewServer(addr string, logger *log.Logger, sess *session.Session) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: &http.Server{
			Addr:           addr,
			Handler:        mux,
			ReadTimeout:    5 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		Logger:  logger,
		Session: sess,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The bridge and the terminal sit on the same trusted LAN.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/pay/sale", s.saleHandler)
	mux.HandleFunc("/ws", s.wsHandler)

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.Logger.Infof("Starting terminal server on %s", s.Addr)
	return s.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.Logger.Info("Shutting down terminal server...")
	return s.Shutdown(ctx)
}
