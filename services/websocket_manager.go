package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"student-tracker/models"
)

// WebSocket errors
var (
	ErrConnectionNotFound   = errors.New("connection not found")
	ErrConnectionBufferFull = errors.New("connection buffer full")
)

// Broadcast event types pushed to dashboard clients.
const (
	EventTableUpdated = "table_updated"
	EventAlerts       = "alerts"
)

// WebSocketManager fans table and alert changes out to every connected
// dashboard so the record list re-renders without polling.
type WebSocketManager struct {
	// Map of user ID to connection
	connections map[string]*WebSocketConnection
	mu          sync.RWMutex
	broadcast   chan BroadcastMessage
}

// WebSocketConnection represents a single WebSocket connection
type WebSocketConnection struct {
	Conn     *websocket.Conn
	UserID   string
	UserName string
	Send     chan []byte
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	Type string
	Data interface{}
}

// MessagePayload represents the structure of WebSocket messages
type MessagePayload struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

var wsManager *WebSocketManager
var once sync.Once

// GetWebSocketManager returns the singleton WebSocket manager
func GetWebSocketManager() *WebSocketManager {
	once.Do(func() {
		wsManager = &WebSocketManager{
			connections: make(map[string]*WebSocketConnection),
			broadcast:   make(chan BroadcastMessage, 100),
		}
		go wsManager.handleBroadcast()
	})
	return wsManager
}

// RegisterConnection registers a new WebSocket connection
func (m *WebSocketManager) RegisterConnection(conn *WebSocketConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connections[conn.UserID] = conn

	slog.Info("WebSocket connection registered",
		"userID", conn.UserID,
		"totalConnections", len(m.connections))
}

// UnregisterConnection removes a WebSocket connection
func (m *WebSocketManager) UnregisterConnection(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, exists := m.connections[userID]; exists {
		close(conn.Send)
		delete(m.connections, userID)

		slog.Info("WebSocket connection unregistered",
			"userID", userID,
			"remainingConnections", len(m.connections))
	}
}

// BroadcastTableUpdate pushes the freshly saved table to every client.
func (m *WebSocketManager) BroadcastTableUpdate(table *models.Table) {
	m.broadcast <- BroadcastMessage{Type: EventTableUpdated, Data: table}
}

// BroadcastAlerts pushes the current inactivity alert list to every client.
func (m *WebSocketManager) BroadcastAlerts(alerts []models.Alert) {
	m.broadcast <- BroadcastMessage{Type: EventAlerts, Data: alerts}
}

// handleBroadcast processes broadcast messages
func (m *WebSocketManager) handleBroadcast() {
	for message := range m.broadcast {
		payload := MessagePayload{
			Type:      message.Type,
			Data:      message.Data,
			Timestamp: time.Now().Unix(),
		}

		jsonData, err := json.Marshal(payload)
		if err != nil {
			slog.Error("Failed to marshal WebSocket message", "error", err)
			continue
		}

		m.mu.RLock()
		for _, conn := range m.connections {
			select {
			case conn.Send <- jsonData:
				// Message sent successfully
			default:
				// Connection buffer full, skip
				slog.Warn("WebSocket connection buffer full", "userID", conn.UserID)
			}
		}
		m.mu.RUnlock()
	}
}

// SendToConnection sends a message to a specific user's connection
func (m *WebSocketManager) SendToConnection(userID string, data []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if conn, exists := m.connections[userID]; exists {
		select {
		case conn.Send <- data:
			return nil
		default:
			return ErrConnectionBufferFull
		}
	}
	return ErrConnectionNotFound
}

// GetConnectionCount returns the number of active connections
func (m *WebSocketManager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}
