package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/garage-relay/internal/events"
	"github.com/nerrad567/garage-relay/internal/infrastructure/config"
	"github.com/nerrad567/garage-relay/internal/infrastructure/logging"
	"github.com/nerrad567/garage-relay/internal/metrics"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 64
)

// WSMessage is the envelope for every frame on the event stream.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload names the channels a subscribe or unsubscribe applies to.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is an inbound frame; the payload is decoded per message type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newWSMessage(msgType, id string, payload any) WSMessage {
	return WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
}

// Hub tracks WebSocket clients and pushes door and user events to the ones
// subscribed to the event's channel. It is an events.Sink.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub creates a hub. m may be nil.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	gone := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range gone {
		c.shutdown()
		if c.conn != nil {
			c.conn.Close()
		}
		h.metrics.ClientDisconnected()
	}
}

// Name implements events.Sink.
func (*Hub) Name() string { return "websocket" }

// Handle implements events.Sink by broadcasting e on its channel.
func (h *Hub) Handle(_ context.Context, e events.Event) error {
	h.Broadcast(e.Channel(), e)
	return nil
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.ClientConnected()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Calling it twice is harmless.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !present {
		return
	}
	c.shutdown()
	h.metrics.ClientDisconnected()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends payload to all clients subscribed to channel. Slow
// clients lose the frame rather than stall the caller.
func (h *Hub) Broadcast(channel string, payload any) {
	msg := newWSMessage(WSTypeEvent, "", payload)
	msg.EventType = channel

	frame, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding broadcast", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.subscribed(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range targets {
		if !c.enqueue(frame) {
			dropped++
		}
	}
	if len(targets) > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", len(targets), "dropped", dropped)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WSClient is one connection on the event stream.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	closed        bool
}

func newWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
}

func (c *WSClient) subscribe(channels ...string) {
	c.mu.Lock()
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *WSClient) unsubscribe(channels ...string) {
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// enqueue queues a frame without blocking. It reports false when the
// buffer is full or the client is already shut down.
func (c *WSClient) enqueue(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue once, which stops the write pump.
func (c *WSClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) reply(msgType, id string, payload any) {
	frame, err := json.Marshal(newWSMessage(msgType, id, payload))
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (c *WSClient) replyError(id, message string) {
	c.reply(WSTypeError, id, map[string]string{"message": message})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and starts the client pumps.
// The stream is read-only: clients can subscribe but cannot act on the relay.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn)
	s.hub.Register(c)

	t := newWSTimings(s.wsCfg)
	go c.writePump(t)
	go c.readPump(t)
}

type wsTimings struct {
	readWait  time.Duration
	writeWait time.Duration
	pingEvery time.Duration
	maxFrame  int64
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	return wsTimings{
		readWait:  time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second,
		writeWait: time.Duration(cfg.PongTimeout) * time.Second,
		pingEvery: time.Duration(cfg.PingInterval) * time.Second,
		maxFrame:  int64(cfg.MaxMessageSize),
	}
}

func (c *WSClient) readPump(t wsTimings) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(t.readWait)) }

	c.conn.SetReadLimit(t.maxFrame)
	extend() //nolint:errcheck // surfaced by the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // surfaced by the next read
		c.dispatch(data)
	}
}

func (c *WSClient) writePump(t wsTimings) {
	ping := time.NewTicker(t.pingEvery)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(t.writeWait)) //nolint:errcheck // write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // peer may be gone
				return
			}
			if err := write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) dispatch(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(WSTypePong, req.ID, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &sub); err != nil {
				c.replyError(req.ID, "invalid "+req.Type+" payload")
				return
			}
		}
		// Unknown channel names are accepted and never receive events.
		if req.Type == WSTypeSubscribe {
			c.subscribe(sub.Channels...)
			c.reply(WSTypeResponse, req.ID, map[string]any{"subscribed": sub.Channels})
			return
		}
		c.unsubscribe(sub.Channels...)
		c.reply(WSTypeResponse, req.ID, map[string]any{"unsubscribed": sub.Channels})
	default:
		c.replyError(req.ID, "unknown message type: "+req.Type)
	}
}
