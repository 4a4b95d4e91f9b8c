// Package viewer relays published transcript records to browser clients
// over websockets.
package viewer

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voice-widget/internal/models"
	"voice-widget/internal/observability/logging"
)

// Hub fans transcript records out to connected websocket clients.
// A single goroutine (Run) owns all writes.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan models.TranscriptRecord
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     zerolog.Logger

	mu    sync.RWMutex
	count int
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan models.TranscriptRecord, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // local dev tool
		},
		logger: logging.WithComponent("viewer"),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Broadcast queues rec for every connected client.
func (h *Hub) Broadcast(ctx context.Context, rec models.TranscriptRecord) {
	select {
	case h.broadcast <- rec:
	case <-ctx.Done():
	}
}

// Run serves registrations and broadcasts until ctx is cancelled. It must
// be called at most once.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.setCount()
			return

		case conn := <-h.register:
			h.clients[conn] = true
			h.setCount()
			h.logger.Info().Int("clients", len(h.clients)).Msg("Viewer client connected")

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				h.setCount()
			}
			h.logger.Info().Int("clients", len(h.clients)).Msg("Viewer client disconnected")

		case rec := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteJSON(rec); err != nil {
					h.logger.Warn().Err(err).Msg("Viewer write failed")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.setCount()
		}
	}
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and registers the client. The connection
// is read until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
