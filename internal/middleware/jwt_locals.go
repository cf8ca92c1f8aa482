package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
)

const (
	localUser   = "user"
	localUserID = "userId"
	localRole   = "role"
)

// SetUser attaches the authenticated user to the request.
func SetUser(c *fiber.Ctx, u *models.User) {
	c.Locals(localUser, u)
	c.Locals(localUserID, u.ID)
	c.Locals(localRole, u.Role)
}

func UserFrom(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(localUser).(*models.User)
	return u
}

// ActorFrom returns nil for anonymous requests.
func ActorFrom(c *fiber.Ctx) *models.Actor {
	id, ok := c.Locals(localUserID).(uuid.UUID)
	if !ok {
		return nil
	}
	role, _ := c.Locals(localRole).(models.Role)
	return &models.Actor{ID: id, Role: role}
}
