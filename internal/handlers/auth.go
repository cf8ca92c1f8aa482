package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/middleware"
	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/services/auth"
)

type AuthHandler struct {
	Auth         *auth.Service
	Expires      time.Duration
	SecureCookie bool
}

func (h *AuthHandler) setCookie(c *fiber.Ctx, token string, maxAge int) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.SecureCookie,
		SameSite: "Lax",
		MaxAge:   maxAge,
	})
}

func (h *AuthHandler) signedIn(c *fiber.Ctx, status int, message string, s *auth.Session) error {
	h.setCookie(c, s.Token, int(h.Expires.Seconds()))
	return success(c, status, message, s)
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req auth.RegisterInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	s, err := h.Auth.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return h.signedIn(c, fiber.StatusCreated, "Registered", s)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req auth.LoginInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	s, err := h.Auth.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return h.signedIn(c, fiber.StatusOK, "Logged in", s)
}

func (h *AuthHandler) SendCode(c *fiber.Ctx) error {
	var req auth.SendCodeInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ttl, err := h.Auth.SendCode(c.UserContext(), req)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Verification code sent", fiber.Map{
		"expires_in": int(ttl.Seconds()),
	})
}

func (h *AuthHandler) LoginWithCode(c *fiber.Ctx) error {
	var req auth.CodeLoginInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	s, err := h.Auth.LoginWithCode(c.UserContext(), req)
	if err != nil {
		return err
	}
	return h.signedIn(c, fiber.StatusOK, "Logged in", s)
}

// Logout only clears the cookie. Tokens are stateless and stay valid until
// they expire.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.setCookie(c, "", -1)
	return success(c, fiber.StatusOK, "Logged out", nil)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	u, err := h.Auth.Me(c.UserContext(), middleware.ActorFrom(c))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "", u)
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	var req auth.ProfileInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.Auth.UpdateProfile(c.UserContext(), middleware.ActorFrom(c), req)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Profile updated", u)
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var req auth.ChangePasswordInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.Auth.ChangePassword(c.UserContext(), middleware.ActorFrom(c), req); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "Password changed", nil)
}
