package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"speechcoach/pkg/coach"
	"speechcoach/pkg/history"
	"speechcoach/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Event types sent over the WebSocket feed
const (
	EventState   = "state"
	EventElapsed = "elapsed"
	EventEntry   = "entry"
	EventFailure = "failure"
)

// EventMessage is one WebSocket notification
type EventMessage struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	State     coach.State    `json:"state,omitempty"`
	Reason    coach.Reason   `json:"reason,omitempty"`
	Elapsed   int            `json:"elapsed,omitempty"`
	Max       int            `json:"max,omitempty"`
	Entry     *history.Entry `json:"entry,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Client represents a connected WebSocket client
type Client struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans controller events out to WebSocket clients. It implements
// coach.EventSink and never blocks the caller.
type EventHub struct {
	logger     *logrus.Logger
	clients    map[*Client]bool
	broadcast  chan *EventMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	running    bool
}

// WebSocketUpgrader configures the WebSocket connection. The API binds to
// loopback by default so any origin is accepted.
var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewEventHub creates a new event hub
func NewEventHub(logger *logrus.Logger) *EventHub {
	return &EventHub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *EventMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run dispatches events until ctx is done
func (h *EventHub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket event hub")
	h.setRunning(true)
	defer h.setRunning(false)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			metrics.SetWebSocketClients(0)
			h.logger.Info("Shutting down WebSocket event hub")
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.SetWebSocketClients(count)
			h.logger.WithField("clients", count).Debug("Client connected to WebSocket")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.SetWebSocketClients(count)
			h.logger.WithField("clients", count).Debug("Client disconnected from WebSocket")

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.WithError(err).Error("Failed to marshal event message")
				continue
			}

			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// slow client
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *EventHub) publish(message *EventMessage) {
	message.Timestamp = time.Now().UTC()
	select {
	case h.broadcast <- message:
	default:
		h.logger.WithField("type", message.Type).Warn("Event hub backlog full; dropping event")
	}
}

// StateChanged implements coach.EventSink
func (h *EventHub) StateChanged(state coach.State, reason coach.Reason) {
	h.publish(&EventMessage{Type: EventState, State: state, Reason: reason})
}

// Elapsed implements coach.EventSink
func (h *EventHub) Elapsed(seconds, maxSeconds int) {
	h.publish(&EventMessage{Type: EventElapsed, Elapsed: seconds, Max: maxSeconds})
}

// EntryCreated implements coach.EventSink
func (h *EventHub) EntryCreated(entry history.Entry) {
	h.publish(&EventMessage{Type: EventEntry, Entry: &entry})
}

// Failure implements coach.EventSink
func (h *EventHub) Failure(kind, message string) {
	h.publish(&EventMessage{Type: EventFailure, Kind: kind, Message: message})
}

// ServeWs handles WebSocket requests from clients
func (h *EventHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade connection to WebSocket")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	select {
	case h.register <- client:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether Run is dispatching events
func (h *EventHub) IsRunning() bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.running
}

func (h *EventHub) setRunning(running bool) {
	h.mutex.Lock()
	h.running = running
	h.mutex.Unlock()
}

// readPump discards inbound messages and unregisters the client on close
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-time.After(time.Second):
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(60 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
