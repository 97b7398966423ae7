// Package ws bridges the Redis signal bus to WebSocket clients so desk UIs
// receive position and exit changes as they commit.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openfloor/tradedesk/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// defaultTopics are the bus topics the hub subscribes to: the global
// position feed plus the per-position exit feeds.
var defaultTopics = []string{
	domain.TopicPositions,
	domain.PositionTopic("*"),
}

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // subscribed topics
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to manage its topic set,
// e.g. {"action":"subscribe","topics":["position:abc"]}.
type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Topics []string `json:"topics"`
}

// Hub manages the connected WebSocket clients and fans bus messages out to
// every client subscribed to the source topic.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{} // closed when Run exits
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// broadcastMsg carries a message along with its source topic so the hub can
// route it only to clients subscribed to that topic.
type broadcastMsg struct {
	topic string
	data  []byte
}

// NewHub creates a WebSocket hub over the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
	}
}

// Run starts the hub's main event loop. It should be called in a goroutine.
// It handles client registration, unregistration, and message broadcasting.
// The loop exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for _, topic := range defaultTopics {
		go h.subscribeTopic(ctx, topic)
	}

	for {
		select {
		case <-ctx.Done():
			// Release any client goroutine blocked on register/unregister
			// before dropping the client set.
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.topic) {
					select {
					case c.send <- msg.data:
					default:
						// Client's send buffer is full; drop the message.
						h.logger.Warn("ws: dropping message for slow client")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribeTopic subscribes to a single bus topic and forwards received
// messages to the hub's broadcast channel.
func (h *Hub) subscribeTopic(ctx context.Context, topic string) {
	msgCh, err := h.bus.Subscribe(ctx, topic)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to topic",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("ws: subscribed to topic", slog.String("topic", topic))

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: topic subscription closed",
					slog.String("topic", topic),
				)
				return
			}
			select {
			case h.broadcast <- broadcastMsg{topic: sig.Topic, data: sig.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{domain.TopicPositions: true},
	}

	if !h.add(c) {
		conn.Close()
		return
	}
	c.sendConnectedStatus()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// add registers c with the run loop. It reports false when the hub has
// already shut down.
func (h *Hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// drop unregisters c. It never blocks past hub shutdown, so disconnecting
// clients cannot leak goroutines once Run has returned.
func (h *Hub) drop(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// readPump reads messages from the WebSocket connection. It handles
// subscription management requests (JSON text frames) from the client.
func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, topic := range msg.Topics {
			c.subs[topic] = true
		}
	case "unsubscribe":
		for _, topic := range msg.Topics {
			delete(c.subs, topic)
		}
	}
}

// sendConnectedStatus pushes a small JSON envelope so clients can mark the
// connection healthy before any desk events flow.
func (c *client) sendConnectedStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"type": "desk_status",
		"payload": map[string]any{
			"ws_connected":   true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// isSubscribed checks whether the client is subscribed to the given topic,
// honouring trailing-star wildcards such as "position:*".
func (c *client) isSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[topic] {
		return true
	}
	for sub := range c.subs {
		if strings.HasSuffix(sub, "*") && strings.HasPrefix(topic, sub[:len(sub)-1]) {
			return true
		}
	}
	return false
}

// writePump pumps messages from the hub to the WebSocket connection, with
// periodic ping frames for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
