package terminal

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/arman-karamii/windows-android-bridge/internal/session"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (s *Server) saleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}

	var req session.SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Logger.Errorf("Invalid sale request body: %v", err)
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	// Sale blocks this handler until resolution or timeout; other
	// requests (health probes included) are served concurrently by the
	// server's own goroutines.
	resp := s.Session.Sale(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type wsEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsHandler is a diagnostic channel, not part of the payment path: it
// greets with HELLO and echoes every text frame back.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Errorf("Websocket upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	s.Logger.Infof("Websocket connected: %s", r.RemoteAddr)

	if err := conn.WriteJSON(wsEvent{Type: "HELLO"}); err != nil {
		s.Logger.Errorf("Websocket hello failed: %v", err)
		return
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Logger.Warningf("Websocket read error: %v", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		echoed := data
		if !json.Valid(echoed) {
			echoed, _ = json.Marshal(string(data))
		}
		if err := conn.WriteJSON(wsEvent{Type: "ECHO", Data: echoed}); err != nil {
			s.Logger.Errorf("Websocket echo failed: %v", err)
			return
		}
	}
}
