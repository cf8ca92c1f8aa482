package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/apperr"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
)

// CookieName carries the token for browser clients.
const CookieName = "rs_token"

// Authenticator resolves a bearer token to the user behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// TokenFromRequest reads the Authorization bearer header, then the cookie,
// then the "token" query parameter used by websocket clients.
func TokenFromRequest(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	if tok := c.Cookies(CookieName); tok != "" {
		return tok
	}
	return c.Query("token")
}

// Authenticate rejects requests without a valid token.
func Authenticate(a Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := TokenFromRequest(c)
		if tok == "" {
			return apperr.ErrUnauthenticated
		}
		u, err := a.Authenticate(c.UserContext(), tok)
		if err != nil {
			return err
		}
		SetUser(c, u)
		return c.Next()
	}
}

// OptionalAuth lets anonymous requests through but still rejects a token
// that is present and invalid.
func OptionalAuth(a Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := TokenFromRequest(c)
		if tok == "" {
			return c.Next()
		}
		u, err := a.Authenticate(c.UserContext(), tok)
		if err != nil {
			return err
		}
		SetUser(c, u)
		return c.Next()
	}
}
