package events

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/metrics"
	id "onboarding-gateway/pkg/domain"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second
	sendBuffer  = 16
	readMaxSize = 512
)

// Message is what clients receive on every checklist change.
type Message struct {
	Type  string           `json:"type"`
	State onboarding.State `json:"state"`
}

type client struct {
	providerID id.ProviderID
	conn       *websocket.Conn
	send       chan Message
}

// Hub fans checklist state out to each provider's websocket clients.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Metrics
	// onLastDisconnect runs when a provider's final client goes away
	onLastDisconnect func(id.ProviderID)

	mu      sync.Mutex
	clients map[id.ProviderID]map[*client]struct{}
}

type HubOption func(*Hub)

func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

func WithHubMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// OnLastDisconnect registers the teardown hook for a provider.
func OnLastDisconnect(fn func(id.ProviderID)) HubOption {
	return func(h *Hub) {
		h.onLastDisconnect = fn
	}
}

// WithAllowedOrigins admits cross-origin upgrades from the given origins.
// Without it only same-origin upgrades (or clients sending no Origin) are
// accepted.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  slog.Default(),
		clients: make(map[id.ProviderID]map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Notify queues st for every client of providerID. A client whose buffer is
// full misses the update; the next one carries the full state anyway.
func (h *Hub) Notify(providerID id.ProviderID, st onboarding.State) {
	msg := Message{Type: "checklist", State: st}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[providerID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping checklist update for slow client",
				"provider_id", providerID.String(),
			)
		}
	}
}

// Clients is the number of connected clients for providerID.
func (h *Hub) Clients(providerID id.ProviderID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[providerID])
}

// Serve upgrades the request and streams updates until the client leaves.
// initial is sent first so the client never waits for a change.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, providerID id.ProviderID, initial onboarding.State) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	c := &client{providerID: providerID, conn: conn, send: make(chan Message, sendBuffer)}
	c.send <- Message{Type: "checklist", State: initial}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.providerID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.providerID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.IncStreamClients()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	set := h.clients[c.providerID]
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	close(c.send)
	last := len(set) == 0
	if last {
		delete(h.clients, c.providerID)
	}
	h.mu.Unlock()
	h.metrics.DecStreamClients()

	if last && h.onLastDisconnect != nil {
		h.onLastDisconnect(c.providerID)
	}
}

// readPump only watches for close and pong frames; clients never send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(readMaxSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("checklist stream closed unexpectedly",
					"provider_id", c.providerID.String(),
					"error", err,
				)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
