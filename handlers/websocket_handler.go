package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"student-tracker/services"
)

// WebSocketMessage represents an incoming WebSocket message
type WebSocketMessage struct {
	Type      string `json:"type"`
	Threshold int    `json:"threshold,omitempty"`
}

// WebSocketUpgrade upgrades HTTP connection to WebSocket
func WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWebSocket handles a dashboard client's live feed connection.
// Clients receive table_updated and alerts events after every saved
// submission; they can also ask for the current alert list on demand.
func HandleWebSocket(c *websocket.Conn) {
	// Set by the auth middleware before the upgrade
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		slog.Error("WebSocket connection without user ID")
		c.Close()
		return
	}
	userName, _ := c.Locals("username").(string)

	conn := &services.WebSocketConnection{
		Conn:     c,
		UserID:   userID,
		UserName: userName,
		Send:     make(chan []byte, 256),
	}

	wsManager := services.GetWebSocketManager()
	wsManager.RegisterConnection(conn)
	defer wsManager.UnregisterConnection(userID)

	slog.Info("WebSocket connection established", "userID", userID)

	// Send initial connection success message
	welcomeMsg := map[string]interface{}{
		"type":    "connected",
		"message": "WebSocket connection established",
		"user_id": userID,
	}
	if welcomeData, err := json.Marshal(welcomeMsg); err == nil {
		c.WriteMessage(websocket.TextMessage, welcomeData)
	}

	go handleWebSocketSend(conn)
	handleWebSocketReceive(conn)
}

// handleWebSocketSend handles sending messages to the WebSocket client
func handleWebSocketSend(conn *services.WebSocketConnection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("Failed to write WebSocket message", "error", err)
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocketReceive handles receiving messages from the WebSocket client
func handleWebSocketReceive(conn *services.WebSocketConnection) {
	defer conn.Conn.Close()

	conn.Conn.SetReadLimit(64 * 1024)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}

		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			slog.Error("Failed to parse WebSocket message", "error", err)
			continue
		}

		switch msg.Type {
		case "ping":
			pongMsg := map[string]string{"type": "pong"}
			if pongData, err := json.Marshal(pongMsg); err == nil {
				conn.Send <- pongData
			}

		case "refresh_alerts":
			handleRefreshAlerts(conn, msg.Threshold)

		default:
			slog.Warn("Unknown WebSocket message type",
				"type", msg.Type,
				"userID", conn.UserID)
		}
	}
}

// handleRefreshAlerts loads the table and sends the requesting client a
// fresh alert list.
func handleRefreshAlerts(conn *services.WebSocketConnection, threshold int) {
	if threshold <= 0 {
		threshold = cfg.InactiveThresholdDays
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	table, err := sheetStore.Load(ctx)
	if err != nil {
		slog.Error("Failed to load records for alert refresh", "error", err)
		sendWebSocketError(conn, "Failed to load records from the store")
		return
	}

	alerts := services.Alerts(table, time.Now(), threshold)

	payload := services.MessagePayload{
		Type:      services.EventAlerts,
		Data:      alerts,
		Timestamp: time.Now().Unix(),
	}
	if data, err := json.Marshal(payload); err == nil {
		conn.Send <- data
	}
}

// sendWebSocketError sends an error message to the WebSocket client
func sendWebSocketError(conn *services.WebSocketConnection, errorMessage string) {
	errorMsg := map[string]string{
		"type":  "error",
		"error": errorMessage,
	}
	if errorData, err := json.Marshal(errorMsg); err == nil {
		conn.Send <- errorData
	}
}
