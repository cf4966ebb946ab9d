package devserver

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub fans mutation events out to every connected push channel client.
// All writes go through Broadcast under one lock, which also satisfies the
// websocket package's single-writer requirement per connection.
type Hub struct {
	logger *slog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Add registers a connection for broadcasts.
func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
	h.logger.Info("push channel client connected", "clients", len(h.conns))
}

// Remove unregisters and closes a connection.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; !ok {
		return
	}
	delete(h.conns, conn)
	conn.Close()
	h.logger.Info("push channel client disconnected", "clients", len(h.conns))
}

// Broadcast sends an event to every connected client, in order. Connections
// that fail to accept the write are dropped.
func (h *Hub) Broadcast(event wireEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Warn("dropping push channel client", "error", err)
			delete(h.conns, conn)
			conn.Close()
		}
	}
}
