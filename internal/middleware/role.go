package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
)

// RequireRoles must run after Authenticate.
func RequireRoles(allowed ...models.Role) fiber.Handler {
	allowedSet := map[models.Role]bool{}
	for _, r := range allowed {
		allowedSet[r] = true
	}

	return func(c *fiber.Ctx) error {
		actor := ActorFrom(c)
		if actor == nil {
			return apperr.ErrUnauthenticated
		}
		if !allowedSet[actor.Role] {
			return apperr.New(apperr.KindForbidden, "forbidden: insufficient role")
		}
		return c.Next()
	}
}

// RequireCapability allows every role granted c.
func RequireCapability(c models.Capability) fiber.Handler {
	return RequireRoles(models.RolesWith(c)...)
}
