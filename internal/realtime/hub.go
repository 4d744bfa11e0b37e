package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"medstore/internal/models"
	"medstore/internal/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// PrincipalResolver maps a bearer token to the caller
type PrincipalResolver func(ctx context.Context, token string) (*models.Principal, error)

// Message is the frame pushed to browsers
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub keeps the open websocket connections of this instance and delivers
// notifications to the rooms they joined
type Hub struct {
	upgrader websocket.Upgrader
	resolve  PrincipalResolver
	mu       sync.RWMutex
	clients  map[*client]struct{}
	logger   *zap.Logger
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]bool

	mu     sync.Mutex
	closed bool
}

// NewHub creates a hub. allowedOrigins empty accepts any origin.
func NewHub(resolve PrincipalResolver, allowedOrigins []string) *Hub {
	h := &Hub{
		resolve: resolve,
		clients: make(map[*client]struct{}),
		logger:  util.GetLogger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: writeWait,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeHTTP upgrades the request. A token is optional; signed-in callers
// join their own room.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rooms := map[string]bool{}
	var principal *models.Principal

	if token := bearerToken(r); token != "" {
		p, err := h.resolve(r.Context(), token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		principal = p
		rooms[p.Room()] = true
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		rooms: rooms,
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	welcome := map[string]interface{}{"rooms": roomList(rooms)}
	if principal != nil {
		welcome["id"] = principal.ID
	}
	if frame, err := encode("connected", welcome); err == nil {
		c.enqueue(frame)
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func roomList(rooms map[string]bool) []string {
	out := make([]string, 0, len(rooms))
	for room := range rooms {
		out = append(out, room)
	}
	return out
}

func encode(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(Message{Type: eventType, Data: data, Timestamp: time.Now()})
}

// Notify delivers n to its room on this instance. An empty room reaches
// every client.
func (h *Hub) Notify(ctx context.Context, n *models.Notification) error {
	frame, err := encode(n.EventType, n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	h.Broadcast(n.Room, frame)
	return nil
}

// Broadcast sends a raw frame to a room
func (h *Hub) Broadcast(room string, frame []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if room == "" || c.rooms[room] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}

// Connections returns the number of open connections
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	util.RealtimeConnections.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		util.RealtimeConnections.Dec()
	}
}

// enqueue drops slow clients instead of blocking the sender
func (c *client) enqueue(frame []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- frame:
		c.mu.Unlock()
		return
	default:
	}
	c.mu.Unlock()

	c.hub.logger.Debug("Dropping slow websocket client")
	c.close()
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.hub.unregister(c)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readPump only services control frames; clients never send data
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}
