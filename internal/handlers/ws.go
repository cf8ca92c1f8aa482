package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/middleware"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/realtime"
)

type NotificationHandler struct {
	Hub *realtime.Hub
}

func NewNotificationHandler(hub *realtime.Hub) *NotificationHandler {
	return &NotificationHandler{Hub: hub}
}

// Upgrade only lets authenticated websocket handshakes through. Mount it
// after middleware.Authenticate, which accepts ?token= for browsers.
func (h *NotificationHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if middleware.ActorFrom(c) == nil {
		return fiber.ErrUnauthorized
	}
	return c.Next()
}

// Stream joins the socket to its user room and role room.
func (h *NotificationHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userId").(uuid.UUID)
		role, _ := conn.Locals("role").(models.Role)

		h.Hub.Serve(&realtime.Client{
			ID:     uuid.NewString(),
			UserID: userID,
			Role:   role,
			Conn:   realtime.NewWebSocketConn(conn),
			Send:   make(chan []byte, realtime.ClientSendBufSize),
		})
	})
}
