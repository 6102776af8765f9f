package websocket

import (
	"sync"

	"github.com/OldStager01/packet-anomaly/internal/logger"
)

type routedMessage struct {
	runID string
	data  []byte
}

// Hub fans run messages out to connected clients. A message tagged with a run
// id goes to clients following that run and to clients following every run.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan routedMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	settings   *WebSocketSettings
}

func NewHub(settings *WebSocketSettings) *Hub {
	if settings == nil {
		settings = NewWebSocketSettings(nil)
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan routedMessage, settings.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		settings:   settings,
	}
}

func (h *Hub) Settings() *WebSocketSettings {
	return h.settings
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logger.Infof("WebSocket client connected (total: %d)", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			logger.Infof("WebSocket client disconnected (total: %d)", total)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// deliver drops clients whose send buffer is full.
func (h *Hub) deliver(msg routedMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.Follows(msg.runID) {
			continue
		}
		select {
		case client.send <- msg.data:
		default:
			delete(h.clients, client)
			client.close()
			logger.Warn("WebSocket client too slow, disconnecting")
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast queues a message for every client regardless of subscription.
func (h *Hub) Broadcast(message []byte) {
	h.BroadcastToRun("", message)
}

func (h *Hub) BroadcastToRun(runID string, message []byte) {
	select {
	case h.broadcast <- routedMessage{runID: runID, data: message}:
	default:
		logger.Warn("Broadcast channel full, dropping message")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Full reports whether the configured connection cap has been reached.
func (h *Hub) Full() bool {
	return h.settings.MaxConnections > 0 && h.ClientCount() >= h.settings.MaxConnections
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
