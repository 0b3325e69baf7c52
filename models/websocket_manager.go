package models

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketManager handles WebSocket connections and broadcasts
type WebSocketManager struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.Mutex
}

// NewWebSocketManager creates a new WebSocket manager
func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Start begins the WebSocket manager
func (wsm *WebSocketManager) Start() {
	go func() {
		for {
			select {
			case client := <-wsm.register:
				wsm.mu.Lock()
				wsm.clients[client] = true
				n := len(wsm.clients)
				wsm.mu.Unlock()
				slog.Debug("websocket client connected", "clients", n)
			case client := <-wsm.unregister:
				wsm.mu.Lock()
				if _, ok := wsm.clients[client]; ok {
					delete(wsm.clients, client)
					client.Close()
				}
				n := len(wsm.clients)
				wsm.mu.Unlock()
				slog.Debug("websocket client disconnected", "clients", n)
			case message := <-wsm.broadcast:
				wsm.mu.Lock()
				for client := range wsm.clients {
					// Drop peers that can no longer be written to.
					if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
						slog.Warn("websocket send failed, dropping client", "err", err)
						client.Close()
						delete(wsm.clients, client)
					}
				}
				wsm.mu.Unlock()
			case <-wsm.done:
				wsm.mu.Lock()
				for client := range wsm.clients {
					client.Close()
					delete(wsm.clients, client)
				}
				wsm.mu.Unlock()
				return
			}
		}
	}()
}

// Stop closes every client and ends the manager loop.
func (wsm *WebSocketManager) Stop() {
	close(wsm.done)
}

// BroadcastJobUpdate sends a job update to all connected clients
func (wsm *WebSocketManager) BroadcastJobUpdate(job *Job) {
	update := map[string]any{
		"type":      "job_update",
		"job_id":    job.ID,
		"status":    job.Status,
		"progress":  job.Progress,
		"message":   job.Message,
		"timestamp": job.UpdatedAt,
	}
	if job.Status.Terminal() {
		update["resultData"] = job.Result
	}

	jsonData, err := json.Marshal(update)
	if err != nil {
		slog.Error("failed to marshal job update", "job_id", job.ID, "err", err)
		return
	}

	// Slow consumers must not stall the pipeline that produced the update.
	select {
	case wsm.broadcast <- jsonData:
	default:
		slog.Warn("websocket broadcast buffer full, dropping update", "job_id", job.ID)
	}
}

// RegisterClient registers a new WebSocket client
func (wsm *WebSocketManager) RegisterClient(conn *websocket.Conn) {
	select {
	case wsm.register <- conn:
	case <-wsm.done:
		conn.Close()
	}
}

// UnregisterClient unregisters a WebSocket client
func (wsm *WebSocketManager) UnregisterClient(conn *websocket.Conn) {
	select {
	case wsm.unregister <- conn:
	case <-wsm.done:
	}
}

// Clients returns the number of connected clients.
func (wsm *WebSocketManager) Clients() int {
	wsm.mu.Lock()
	defer wsm.mu.Unlock()
	return len(wsm.clients)
}
