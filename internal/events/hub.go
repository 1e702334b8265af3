package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// Hub subscribes to the order-event PubSub channel and fans each event
// out to every connected WebSocket client.
type Hub struct {
	rdb *goredis.Client

	mu      sync.RWMutex
	clients map[*Client]bool
	last    []byte

	// OnClientCountChange reports the connected-client count; wired to
	// a metrics gauge.
	OnClientCountChange func(n int)
}

// NewHub creates a hub over the given Redis client.
func NewHub(rdb *goredis.Client) *Hub {
	return &Hub{
		rdb:     rdb,
		clients: make(map[*Client]bool),
	}
}

// Run consumes the PubSub channel until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, Channel)
	defer pubsub.Close()

	log.Printf("[events] subscribed to %s", Channel)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast([]byte(msg.Payload))
		}
	}
}

// broadcast delivers one payload to every client. A slow client drops
// the message rather than stalling the hub.
func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = payload
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	// Late joiners receive the most recent event immediately.
	if h.last != nil {
		select {
		case c.send <- h.last:
		default:
		}
	}
	h.mu.Unlock()
	if h.OnClientCountChange != nil {
		h.OnClientCountChange(n)
	}
	log.Printf("[events] ws client connected (%d total)", n)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if h.OnClientCountChange != nil {
		h.OnClientCountChange(n)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a WebSocket client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[events] ws upgrade failed: %v", err)
		return
	}

	c := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	h.addClient(c)

	go c.writePump()
	go c.readPump()
}

// PublishLocal injects an event directly into connected clients,
// bypassing Redis. Used by tests and single-instance deployments.
func (h *Hub) PublishLocal(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.broadcast(data)
}
