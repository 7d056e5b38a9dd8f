package terminal

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	goeen_log "github.com/eencloud/goeen/log"
	"github.com/gorilla/websocket"

	"github.com/arman-karamii/windows-android-bridge/internal/gateway"
	"github.com/arman-karamii/windows-android-bridge/internal/session"
)

func testLogger() *goeen_log.Logger {
	return goeen_log.NewContext(os.Stdout, "", goeen_log.LevelError).GetLogger("terminal-test", goeen_log.LevelError)
}

func newTestServer(t *testing.T, mode string) (*Server, *httptest.Server) {
	t.Helper()
	logger := testLogger()
	sess := session.New(logger)
	sim := gateway.NewSimulator(logger, sess, mode, 10*time.Millisecond)
	sess.SetGateway(sim)
	t.Cleanup(sim.Stop)

	srv := NewServer(":0", logger, sess)
	ts := httptest.NewServer(srv.Server.Handler)
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHealthHandler(t *testing.T) {
	_, ts := newTestServer(t, gateway.ModeApprove)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !body["ok"] {
		t.Error(`health body should be {"ok":true}`)
	}
}

func TestSaleHandlerApproved(t *testing.T) {
	_, ts := newTestServer(t, gateway.ModeApprove)

	resp, err := http.Post(ts.URL+"/pay/sale", "application/json",
		bytes.NewBufferString(`{"amount":25000,"timeout":2000}`))
	if err != nil {
		t.Fatalf("sale request failed: %v", err)
	}
	defer resp.Body.Close()

	var sale session.SaleResponse
	if err := json.NewDecoder(resp.Body).Decode(&sale); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if sale.Status != session.StatusApproved {
		t.Errorf("status: got %q, want APPROVED", sale.Status)
	}
	if sale.AuthCode != "000" {
		t.Errorf("authCode: got %q, want 000", sale.AuthCode)
	}
}

func TestSaleHandlerTimeout(t *testing.T) {
	_, ts := newTestServer(t, gateway.ModeSilent)

	resp, err := http.Post(ts.URL+"/pay/sale", "application/json",
		bytes.NewBufferString(`{"amount":25000,"timeout":100}`))
	if err != nil {
		t.Fatalf("sale request failed: %v", err)
	}
	defer resp.Body.Close()

	var sale session.SaleResponse
	if err := json.NewDecoder(resp.Body).Decode(&sale); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if sale.Status != session.StatusTimeout || sale.AuthCode != "" || sale.RRN != "" {
		t.Errorf("got %+v, want empty TIMEOUT response", sale)
	}
}

func TestSaleHandlerRejectsBadRequests(t *testing.T) {
	_, ts := newTestServer(t, gateway.ModeApprove)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "amount=100"},
		{"zero amount", `{"amount":0}`},
		{"negative amount", `{"amount":-5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/pay/sale", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestWebsocketHelloAndEcho(t *testing.T) {
	_, ts := newTestServer(t, gateway.ModeApprove)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var hello wsEvent
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("reading hello: %v", err)
	}
	if hello.Type != "HELLO" {
		t.Fatalf("first event: got %q, want HELLO", hello.Type)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":1}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var echo wsEvent
	if err := conn.ReadJSON(&echo); err != nil {
		t.Fatalf("reading echo: %v", err)
	}
	if echo.Type != "ECHO" || string(echo.Data) != `{"ping":1}` {
		t.Errorf("echo: got %q %s", echo.Type, echo.Data)
	}
}
