package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/eencloud/goeen/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/arman-karamii/windows-android-bridge/internal/core"
	"github.com/arman-karamii/windows-android-bridge/internal/discovery"
	"github.com/arman-karamii/windows-android-bridge/internal/session"
)

const (
	ActionStartPayment = "START_PAYMENT"
	ActionScanDevices  = "SCAN_DEVICES"

	EventDeviceStatus = "DEVICE_STATUS"
	EventResult       = "RESULT"
	EventError        = "ERROR"
)

// maxCommandSize bounds a single client frame. Commands are tiny; a
// bigger frame is a broken client.
const maxCommandSize = 8 * 1024

// DeviceScanner triggers one discovery sweep.
type DeviceScanner interface {
	Scan(ctx context.Context) (string, bool, error)
}

// command is a client→bridge frame.
type command struct {
	Action  string `json:"action"`
	Amount  int    `json:"amount,omitempty"`
	Timeout int    `json:"timeout,omitempty"` // milliseconds
}

type deviceView struct {
	IP       string `json:"ip"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen"` // epoch milliseconds, 0 when never probed
}

type deviceStatusEvent struct {
	Type              string       `json:"type"`
	CurrentDevice     *string      `json:"currentDevice"`
	DiscoveredDevices []deviceView `json:"discoveredDevices"`
	Link              LinkStats    `json:"link"`
}

type resultEvent struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	AuthCode string `json:"authCode"`
	RRN      string `json:"rrn"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Channel is the bridge's client-facing event stream. One instance
// serves all connections; per-connection state lives in client.
type Channel struct {
	logger   *log.Logger
	registry *discovery.Registry
	scanner  DeviceScanner
	relay    *Relay
	audit    *core.AuditLogger

	upgrader websocket.Upgrader
}

func NewChannel(logger *log.Logger, registry *discovery.Registry, scanner DeviceScanner, relay *Relay, audit *core.AuditLogger) *Channel {
	return &Channel{
		logger:   logger,
		registry: registry,
		scanner:  scanner,
		relay:    relay,
		audit:    audit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Bridge and POS client share a trusted store LAN.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades one POS client connection and serves it until it
// drops. Blocks for the life of the connection.
func (ch *Channel) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := ch.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ch.logger.Errorf("Client upgrade failed: %v", err)
		return
	}

	cl := &client{
		id:      uuid.NewString(),
		addr:    r.RemoteAddr,
		conn:    conn,
		channel: ch,
		send:    make(chan []byte, 64),
	}
	ch.logger.Infof("Client %s connected from %s", cl.id, cl.addr)

	go cl.writePump()

	// Snapshot first, before any command can race it.
	cl.pushDeviceStatus()
	cl.readPump(r.Context())

	ch.logger.Infof("Client %s disconnected", cl.id)
}

// client is one connected POS client.
type client struct {
	id      string
	addr    string
	conn    *websocket.Conn
	channel *Channel
	send    chan []byte

	closeOnce sync.Once
}

func (c *client) readPump(ctx context.Context) {
	defer c.shutdown()

	c.conn.SetReadLimit(maxCommandSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.channel.logger.Warningf("Client %s read error: %v", c.id, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		// Commands run off the read loop so a long sale cannot starve
		// the connection; each one answers with its own event.
		go c.dispatch(ctx, data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// dispatch runs one client command. Every failure mode answers with an
// ERROR event and leaves the connection open.
func (c *client) dispatch(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.channel.logger.Errorf("Recovered handling command from client %s: %v", c.id, r)
			c.pushError("internal error while processing the request")
		}
	}()

	if c.channel.audit != nil {
		if err := c.channel.audit.Log(c.addr, data); err != nil {
			c.channel.logger.Warningf("Audit write failed: %v", err)
		}
	}

	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.pushError(fmt.Sprintf("malformed command: %v", err))
		return
	}

	switch cmd.Action {
	case ActionStartPayment:
		c.startPayment(ctx, cmd)
	case ActionScanDevices:
		c.scanDevices(ctx)
	default:
		c.pushError(fmt.Sprintf("unknown action %q", cmd.Action))
	}
}

func (c *client) startPayment(ctx context.Context, cmd command) {
	if cmd.Amount <= 0 {
		c.pushError("amount must be positive")
		return
	}

	req := session.SaleRequest{Amount: cmd.Amount, Timeout: cmd.Timeout}
	resp, err := c.channel.relay.Forward(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoDevice):
			c.pushError("no terminal selected; run a device scan first")
		case errors.Is(err, ErrDeviceUnreachable):
			c.pushError(fmt.Sprintf("terminal did not answer (%v); run a device scan", err))
		default:
			c.pushError(err.Error())
		}
		return
	}

	c.push(resultEvent{
		Type:     EventResult,
		Status:   resp.Status,
		AuthCode: resp.AuthCode,
		RRN:      resp.RRN,
	})
}

func (c *client) scanDevices(ctx context.Context) {
	if _, _, err := c.channel.scanner.Scan(ctx); err != nil {
		c.pushError(fmt.Sprintf("scan failed: %v", err))
		return
	}
	c.pushDeviceStatus()
}

func (c *client) pushDeviceStatus() {
	records, selected := c.channel.registry.Snapshot()

	views := make([]deviceView, 0, len(records))
	for _, rec := range records {
		var lastSeen int64
		if !rec.LastSeen.IsZero() {
			lastSeen = rec.LastSeen.UnixMilli()
		}
		views = append(views, deviceView{
			IP:       rec.Address,
			Status:   string(rec.Status),
			LastSeen: lastSeen,
		})
	}

	var current *string
	if selected != "" {
		current = &selected
	}

	c.push(deviceStatusEvent{
		Type:              EventDeviceStatus,
		CurrentDevice:     current,
		DiscoveredDevices: views,
		Link:              c.channel.relay.Health(),
	})
}

func (c *client) pushError(message string) {
	c.push(errorEvent{Type: EventError, Message: message})
}

// push queues an event for the write pump. A client that stopped
// draining its queue loses events rather than wedging the bridge.
func (c *client) push(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		c.channel.logger.Errorf("Encoding event for client %s: %v", c.id, err)
		return
	}

	defer func() {
		// send may already be closed if the reader finished first.
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
		c.channel.logger.Warningf("Client %s send queue full, dropping event", c.id)
	}
}
