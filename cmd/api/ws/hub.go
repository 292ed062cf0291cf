package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mark3748/sla-notifier/cmd/api/auth"
	"github.com/mark3748/sla-notifier/internal/events"
	"github.com/mark3748/sla-notifier/internal/metrics"
)

// Hub fans events from Redis out to connected dashboards.
type Hub struct {
	rdb        *redis.Client
	register   chan *Client
	unregister chan *Client
	clients    map[*Client]bool
	broadcast  chan events.Event
	count      atomic.Int64
}

// NewHub constructs a Hub. rdb may be nil to disable the Redis subscription.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		rdb:        rdb,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan events.Event, 16),
	}
}

// Len returns the number of registered clients.
func (h *Hub) Len() int { return int(h.count.Load()) }

// Run serves the hub until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	var ch <-chan *redis.Message
	if h.rdb != nil {
		sub := h.rdb.Subscribe(ctx, events.Channel)
		ch = sub.Channel()
		defer sub.Close()
	}
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case msg, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("decode event")
				continue
			}
			h.fanout(ev)
		case c := <-h.register:
			h.clients[c] = true
			h.count.Add(1)
			metrics.WSClients.Inc()
		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
			}
		case ev := <-h.broadcast:
			h.fanout(ev)
		}
	}
}

func (h *Hub) fanout(ev events.Event) {
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			// slow consumer
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
	metrics.WSClients.Dec()
}

// Broadcast enqueues an event for all clients of this process.
func (h *Hub) Broadcast(ev events.Event) { h.broadcast <- ev }

// Client is one websocket connection. Agents only receive events about
// their own tickets; supervisors receive everything.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan events.Event
	email string
	all   bool
}

// NewClient constructs a client.
func NewClient(h *Hub, conn *websocket.Conn, email string, all bool) *Client {
	return &Client{hub: h, conn: conn, send: make(chan events.Event, 8), email: email, all: all}
}

func (c *Client) wants(ev events.Event) bool { return ev.VisibleTo(c.email, c.all) }

// ReadPump reads until the peer goes away, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WritePump writes events to the connection.
func (c *Client) WritePump(ctx context.Context) {
	defer func() { _ = c.conn.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			if !c.wants(ev) {
				continue
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

// Upgrader accepts any origin; the route sits behind auth middleware.
var Upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Handler upgrades the request and serves the live event feed.
func Handler(h *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := auth.CurrentUser(c)
		conn, err := Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade")
			return
		}
		cl := NewClient(h, conn, u.Email, u.HasRole(auth.RoleSupervisor))
		h.register <- cl
		ctx, cancel := context.WithCancel(context.Background())
		go cl.WritePump(ctx)
		cl.ReadPump()
		cancel()
	}
}
