package push

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const writeWait = 10 * time.Second

// Event is the payload pushed to a user room.
type Event struct {
	Type      string      `json:"type"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Link      *string     `json:"link,omitempty"`
	RelatedID *uint       `json:"related_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Client is one websocket connection bound to a user room.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

// Hub fans events out to connected clients by user id. Delivery is
// best-effort: a slow or gone client is dropped, never waited on.
type Hub struct {
	clients    map[uint]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	done       chan struct{}
}

// NewHub creates a hub; call Run in a goroutine before serving clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes register/unregister events until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			room := h.clients[client.userID]
			if room == nil {
				room = make(map[*Client]struct{})
				h.clients[client.userID] = room
			}
			room[client] = struct{}{}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()

		case <-h.done:
			return
		}
	}
}

// Stop terminates the Run loop.
func (h *Hub) Stop() {
	close(h.done)
}

// drop removes a client; caller holds h.mu.
func (h *Hub) drop(client *Client) {
	room, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := room[client]; ok {
		delete(room, client)
		close(client.send)
		if len(room) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

// Publish sends an event to every connection in the user's room. It never
// blocks the caller; failure to deliver is not an error.
func (h *Hub) Publish(userID uint, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("push: marshal event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			h.drop(client)
		}
	}
}

// Serve attaches a websocket connection to the user's room and blocks until
// the connection closes. Intended to run inside the websocket handler.
func (h *Hub) Serve(userID uint, conn *websocket.Conn) {
	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		userID: userID,
	}
	h.register <- client

	go client.writePump()
	client.readPump()
}

// readPump discards inbound frames; the push channel is one-way. Its real
// job is detecting the close.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
