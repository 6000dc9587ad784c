package websocket

import (
	"context"

	"github.com/gofiber/websocket/v2"
)

// ServeWs attaches a connection to the hub and blocks until it closes.
func ServeWs(ctx context.Context, hub *Hub, c *websocket.Conn, sessionID string, handler MessageHandler) {
	client := &Client{
		Hub:       hub,
		Conn:      c,
		SessionID: sessionID,
		Send:      make(chan []byte, 256),
		handler:   handler,
	}
	if !hub.attach(client) {
		c.Close()
		return
	}

	go client.writePump()
	client.readPump(ctx) // Run readPump in current goroutine (handler)
}
