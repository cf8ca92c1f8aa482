package realtime

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// WebSocketConn wraps websocket.Conn so hub.go does not depend on the transport.
type WebSocketConn struct {
	Conn *websocket.Conn
}

func NewWebSocketConn(c *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{Conn: c}
}

// Serve registers client, pumps hub messages to the socket and blocks on the
// read loop until the peer goes away. Inbound frames are only keep-alives.
func (h *Hub) Serve(client *Client) {
	conn := client.Conn.Conn
	h.RegisterClient(client)
	defer h.UnregisterClient(client)

	go func() {
		for msg := range client.Send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("websocket write failed", zap.String("client_id", client.ID), zap.Error(err))
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.Debug("websocket closed", zap.String("client_id", client.ID), zap.Error(err))
			return
		}
	}
}
