// ===============================
// internal/websocket/hub.go - Delivery Progress Hub
// ===============================

package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c-o-l-d-x/SeriesBoT/internal/delivery"
)

// ===============================
// MESSAGE TYPES
// ===============================

type MessageType string

const (
	TypeConnectionEstablished MessageType = "connection_established"
	TypePing                  MessageType = "ping"
	TypePong                  MessageType = "pong"

	TypeDeliveryProgress MessageType = "delivery_progress"
	TypeDeliveryFinished MessageType = "delivery_finished"
)

type Message struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ===============================
// CLIENT CONNECTION
// ===============================

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Client struct {
	ID   string
	Conn *websocket.Conn
	Hub  *Hub
	Send chan []byte
}

func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Hub:  hub,
		Send: make(chan []byte, 256),
	}
}

// ReadPump drains the connection so pings and close frames are processed.
// Ops clients only listen; inbound payloads are ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(1024)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket client %s read error: %v", c.ID, err)
			}
			return
		}
	}
}

// WritePump pushes queued events and keepalive pings to the client.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ===============================
// HUB
// ===============================

// Hub fans delivery progress out to every connected ops client. It
// implements the delivery engine's Notifier interface.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register attaches a client and greets it.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("🔌 WebSocket client %s connected (%d total)", client.ID, count)
	h.sendTo(client, Message{
		Type:      TypeConnectionEstablished,
		Data:      map[string]string{"clientId": client.ID},
		Timestamp: time.Now(),
	})
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("🔌 WebSocket client %s disconnected (%d total)", client.ID, count)
}

// BroadcastProgress pushes one delivery progress event to all clients.
func (h *Hub) BroadcastProgress(event delivery.ProgressEvent) {
	msgType := TypeDeliveryProgress
	if event.Finished {
		msgType = TypeDeliveryFinished
	}
	h.broadcast(Message{Type: msgType, Data: event, Timestamp: time.Now()})
}

// ClientCount returns how many ops clients are attached.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("WebSocket marshal error: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- payload:
		default:
			// Slow consumer, drop the event rather than block delivery.
		}
	}
}

func (h *Hub) sendTo(client *Client, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.Send <- payload:
	default:
	}
}
