package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/feasp/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 50 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages queued per client before it is dropped as too slow.
	clientBuffer = 16
)

// ReloadPath is where browsers connect for live reload.
const ReloadPath = "/__feasp/reload"

// ReloadMessage is sent to browsers when watched files change.
type ReloadMessage struct {
	Type  string   `json:"type"`
	Paths []string `json:"paths,omitempty"`
}

// Client is one connected browser.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans reload messages out to connected browsers.
type Hub struct {
	logger         logging.Logger
	originPatterns []string

	clients      map[*Client]struct{}
	clientsMutex sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewHub returns a hub. originPatterns are host patterns accepted in the
// Origin header in addition to the request's own host.
func NewHub(logger logging.Logger, originPatterns ...string) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		logger:         logger.WithComponent("reload"),
		originPatterns: originPatterns,
		clients:        make(map[*Client]struct{}),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan []byte),
		done:           make(chan struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
		hub:  h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	go client.readPump()
}

// Run serves register, unregister and broadcast requests until ctx is done
// or Close is called.
func (h *Hub) Run(ctx context.Context) {
	defer h.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return

		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(ctx, "client connected", "clients", count)

		case client := <-h.unregister:
			h.clientsMutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(ctx, "client disconnected", "clients", count)

		case message := <-h.broadcast:
			h.clientsMutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Too slow; drop it.
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.clientsMutex.Unlock()
		}
	}
}

// Broadcast sends msg to every connected client. It returns false once the
// hub is closed.
func (h *Hub) Broadcast(msg ReloadMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		data = []byte(`{"type":"reload"}`)
	}
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.broadcast <- data:
		return true
	case <-h.done:
		return false
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops the hub. It is safe to call more
// than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.clientsMutex.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.clientsMutex.Unlock()
	})
}

// readPump reads until the peer goes away. Browsers never send anything
// meaningful; reading keeps control frames flowing.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.CloseNow()
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && status != -1 {
				c.hub.logger.Debug(context.Background(), "websocket read ended", "status", status.String())
			}
			return
		}
	}
}

// writePump writes queued messages and pings. It closes the connection
// when the send channel is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusGoingAway, "")
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.conn.CloseNow()
				return
			}
		}
	}
}
